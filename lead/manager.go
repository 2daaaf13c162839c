package lead

import (
	"context"
	"errors"
	"fmt"

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

// Manager handles the database operations relating to Lead
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for leads
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Lead{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize lead.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Create persists a new Lead in processing with a fresh id
func (m *Manager) Create(ctx context.Context, l *Lead) error {
	l.ID = uuid.New().String()
	l.Status = StatusProcessing
	result := m.DB.WithContext(ctx).Create(l)
	if result.Error != nil {
		m.Logger.Error("Unable to create new lead in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create lead")
	}
	return nil
}

// GetByID returns nil, nil if no Lead has the id
func (m *Manager) GetByID(ctx context.Context, id string) (*Lead, error) {
	var l Lead
	result := m.DB.WithContext(ctx).Where("id = ?", id).First(&l)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get lead by id")
	}
	return &l, nil
}

// Save writes every field of l
func (m *Manager) Save(ctx context.Context, l *Lead) error {
	result := m.DB.WithContext(ctx).Save(l)
	if result.Error != nil {
		m.Logger.Error("Unable to save lead",
			zap.String("LeadID", l.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save lead")
	}
	return nil
}
