package proposal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a Proposal
type Status string

// Defining the Status of a Proposal
const (
	StatusInReview Status = "IN_REVIEW"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var (
	// ErrNotFound is returned when no Proposal has the requested id
	ErrNotFound = errors.New("proposal not found")
	// ErrInvalidState is returned when the Proposal cannot take the decision
	ErrInvalidState = errors.New("proposal is not awaiting a decision")
)

// Proposal is a commercial proposal going through review in the workflow engine
type Proposal struct {
	ID                string          `json:"id" gorm:"primaryKey"`
	Number            string          `json:"number" gorm:"uniqueIndex"`
	Client            string          `json:"client"`
	Seller            string          `json:"seller"`
	TotalValue        decimal.Decimal `json:"totalValue" gorm:"type:decimal(14,2)"`
	Status            Status          `json:"status" gorm:"index"`
	Notes             string          `json:"notes,omitempty"`
	ApprovedAt        *time.Time      `json:"approvedAt"`
	ProcessInstanceID string          `json:"processInstanceId"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Pending is true while the reviewers have not decided
func (p *Proposal) Pending() bool {
	return p.Status == StatusInReview && p.ProcessInstanceID != ""
}
