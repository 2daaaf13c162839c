package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrUnknownLog is returned when updating a Log that does not exist
var ErrUnknownLog = fmt.Errorf("saga log not found")

// RecorderOptions contains the dependencies of Recorder
type RecorderOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Recorder persists saga Logs
type Recorder struct {
	RecorderOptions
}

// NewRecorder returns a Recorder and migrates its table
func NewRecorder(option RecorderOptions) (*Recorder, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Log{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize saga.Recorder")
	}
	return &Recorder{
		RecorderOptions: option,
	}, nil
}

// Begin opens a running Log for operation on entityID and returns its id
func (r *Recorder) Begin(ctx context.Context, operation, entityID string) (string, error) {
	l := &Log{
		ID:        uuid.New().String(),
		Operation: operation,
		EntityID:  entityID,
		Status:    StatusRunning,
		Steps:     datatypes.JSON("[]"),
	}
	if result := r.DB.WithContext(ctx).Create(l); result.Error != nil {
		r.Logger.Error("Unable to create saga log",
			zap.String("Operation", operation),
			zap.Error(result.Error),
		)
		return "", extErrors.Wrap(result.Error, "Cannot create saga log")
	}
	return l.ID, nil
}

func (r *Recorder) update(ctx context.Context, id string, fn func(l *Log) error) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l Log
		if err := tx.First(&l, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownLog
			}
			return err
		}
		if err := fn(&l); err != nil {
			return err
		}
		return tx.Save(&l).Error
	})
	if err != nil {
		r.Logger.Error("Unable to update saga log",
			zap.String("SagaID", id),
			zap.Error(err),
		)
		return extErrors.Wrap(err, "Cannot update saga log")
	}
	return nil
}

// StepCompleted appends step to the Log
func (r *Recorder) StepCompleted(ctx context.Context, id, step string) error {
	return r.update(ctx, id, func(l *Log) error {
		return l.appendStep(step)
	})
}

// Complete marks the Log completed
func (r *Recorder) Complete(ctx context.Context, id string) error {
	return r.update(ctx, id, func(l *Log) error {
		l.Status = StatusCompleted
		return nil
	})
}

// Fail marks the Log failed at step with cause
func (r *Recorder) Fail(ctx context.Context, id, step string, cause error) error {
	return r.update(ctx, id, func(l *Log) error {
		l.Status = StatusFailed
		l.FailedStep = step
		if cause != nil {
			l.Error = cause.Error()
		}
		return nil
	})
}

// Get returns nil, nil if no Log has the id
func (r *Recorder) Get(ctx context.Context, id string) (*Log, error) {
	var l Log
	result := r.DB.WithContext(ctx).First(&l, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get saga log")
	}
	return &l, nil
}

// ListByEntity returns every Log of entityID, newest first
func (r *Recorder) ListByEntity(ctx context.Context, entityID string) ([]Log, error) {
	logs := make([]Log, 0, 1)
	result := r.DB.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at desc").
		Find(&logs)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot list saga logs")
	}
	return logs, nil
}
