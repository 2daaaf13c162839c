package proposal

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

// Manager handles the database operations relating to Proposal
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for proposals
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Proposal{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize proposal.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func newNumber() string {
	return "PROP-" + uuid.New().String()[:8]
}

// Create persists a new Proposal in review with a fresh id and number
func (m *Manager) Create(ctx context.Context, p *Proposal) error {
	p.ID = uuid.New().String()
	p.Number = newNumber()
	p.Status = StatusInReview
	result := m.DB.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.Logger.Error("Unable to create new proposal in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create proposal")
	}
	return nil
}

// GetByID returns nil, nil if no Proposal has the id
func (m *Manager) GetByID(ctx context.Context, id string) (*Proposal, error) {
	var p Proposal
	result := m.DB.WithContext(ctx).Where("id = ?", id).First(&p)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get proposal by id")
	}
	return &p, nil
}

// Save writes every field of p
func (m *Manager) Save(ctx context.Context, p *Proposal) error {
	result := m.DB.WithContext(ctx).Save(p)
	if result.Error != nil {
		m.Logger.Error("Unable to save proposal",
			zap.String("ProposalID", p.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save proposal")
	}
	return nil
}
