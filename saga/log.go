package saga

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Status of a saga execution
type Status string

// Defining the Status of a Log
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Log records the progress of one saga execution so that a partial run can be told apart from a finished one
type Log struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	Operation  string         `json:"operation" gorm:"index"`
	EntityID   string         `json:"entityId" gorm:"index"`
	Status     Status         `json:"status"`
	Steps      datatypes.JSON `json:"steps"`
	FailedStep string         `json:"failedStep,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// CompletedSteps returns the step names in the order they completed
func (l *Log) CompletedSteps() []string {
	steps := make([]string, 0, 4)
	if len(l.Steps) == 0 {
		return steps
	}
	if err := json.Unmarshal(l.Steps, &steps); err != nil {
		return []string{}
	}
	return steps
}

func (l *Log) appendStep(step string) error {
	steps := append(l.CompletedSteps(), step)
	b, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	l.Steps = datatypes.JSON(b)
	return nil
}
