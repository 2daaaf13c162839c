package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the dependencies of Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Subscription
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}, &InvoiceLink{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Create persists a new Subscription. An ID is assigned if empty and the status defaults to pending
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = StatusPending
	}
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}

// getBy matches nothing for an empty value, since unset identities are stored empty
func (m *Manager) getBy(ctx context.Context, column, value string) (*Subscription, error) {
	if value == "" {
		return nil, nil
	}
	var sub Subscription
	result := m.DB.WithContext(ctx).Where(column+" = ?", value).First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrapf(result.Error, "Cannot get subscription by %s", column)
	}

	return &sub, nil
}

// GetByID returns nil, nil if no Subscription has the id
func (m *Manager) GetByID(ctx context.Context, id string) (*Subscription, error) {
	return m.getBy(ctx, "id", id)
}

// GetByGatewaySubscriptionID looks up the Subscription from the gateway's id
func (m *Manager) GetByGatewaySubscriptionID(ctx context.Context, gid string) (*Subscription, error) {
	return m.getBy(ctx, "gateway_subscription_id", gid)
}

// Save writes every field of sub
func (m *Manager) Save(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Save(sub)

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save subscription")
	}
	return nil
}

// StalledOption narrows ListStalled
type StalledOption struct {
	Before time.Time
	Limit  int
}

// ListStalled returns subscriptions that were created in the gateway but never got a workflow instance, last touched before opt.Before
func (m *Manager) ListStalled(ctx context.Context, opt StalledOption) ([]Subscription, error) {
	baseQuery := m.DB.WithContext(ctx).
		Order("updated_at asc").
		Where("erp_customer_code <> ''").
		Where("gateway_subscription_id <> ''").
		Where("(process_instance_id = '' OR process_instance_id IS NULL)")
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("updated_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
