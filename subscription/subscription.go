package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is the unit of recurring billing, with its identities in the ERP, the gateway and the workflow engine
type Subscription struct {
	ID            string `json:"id" gorm:"primaryKey"`
	CustomerEmail string `json:"customerEmail" gorm:"index"`
	CustomerName  string `json:"customerName"`

	// External identities, each written once its remote call succeeds
	ERPCustomerCode       string `json:"erpCustomerCode"`
	GatewayCustomerID     string `json:"gatewayCustomerId"`
	GatewaySubscriptionID string `json:"gatewaySubscriptionId" gorm:"index"`
	ProcessInstanceID     string `json:"processInstanceId"`

	PlanID          string          `json:"planId"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(12,2)"`
	Currency        string          `json:"currency"`
	BillingCycle    string          `json:"billingCycle"`
	PaymentMethodID string          `json:"paymentMethodId"`

	Status          Status     `json:"status" gorm:"index"`
	StartDate       *time.Time `json:"startDate"`
	NextBillingDate *time.Time `json:"nextBillingDate"`
	EndDate         *time.Time `json:"endDate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stage returns how far the creation saga got
func (s *Subscription) Stage() Stage {
	switch {
	case s.ERPCustomerCode == "":
		return StageNew
	case s.GatewaySubscriptionID == "":
		return StageERP
	case s.ProcessInstanceID == "":
		return StageGateway
	default:
		return StageComplete
	}
}

// IsFullyCreated is true once the workflow instance has been started
func (s *Subscription) IsFullyCreated() bool {
	return s.Stage() == StageComplete
}

// Correlated is true when lifecycle operations can be applied: the gateway and the workflow engine both know about it
func (s *Subscription) Correlated() bool {
	return s.GatewaySubscriptionID != "" && s.ProcessInstanceID != ""
}
