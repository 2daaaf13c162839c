package lead

import (
	"errors"
	"time"

	"github.com/zllovesuki/billing-orchestrator/enrichment"

	"gorm.io/datatypes"
)

// Status of a Lead
type Status string

// Defining the Status of a Lead
const (
	StatusProcessing Status = "PROCESSING"
	StatusEnriched   Status = "ENRICHED"
	StatusError      Status = "ERROR"
)

var (
	// ErrNotFound is returned when no Lead has the requested id
	ErrNotFound = errors.New("lead not found")
	// ErrInvalidState is returned when the Lead has no instance waiting for its enrichment
	ErrInvalidState = errors.New("lead is not awaiting enrichment")
)

// Lead is a prospect whose profile is completed from third-party providers
type Lead struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	Name              string            `json:"name"`
	Email             string            `json:"email" gorm:"index"`
	Company           string            `json:"company"`
	Title             string            `json:"title,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	LinkedInURL       string            `json:"linkedInUrl,omitempty"`
	EnrichedData      datatypes.JSONMap `json:"enrichedData"`
	Status            Status            `json:"status" gorm:"index"`
	Notes             string            `json:"notes,omitempty"`
	EnrichedAt        *time.Time        `json:"enrichedAt"`
	ProcessInstanceID string            `json:"processInstanceId"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Identity is what the enrichment providers look the Lead up by
func (l *Lead) Identity() enrichment.Identity {
	return enrichment.Identity{
		Name:    l.Name,
		Email:   l.Email,
		Company: l.Company,
	}
}

// Pending is true while the workflow instance waits for the enrichment outcome
func (l *Lead) Pending() bool {
	return l.Status == StatusProcessing && l.ProcessInstanceID != ""
}
