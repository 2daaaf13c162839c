package subscription

// Status mirrors the payment gateway's subscription status vocabulary
type Status string

// Defining the Status of a Subscription. StatusPending is local only, before the gateway has seen the subscription
const (
	StatusPending           Status = "pending"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
)

// Stage tells how far the creation saga got for a Subscription
type Stage int

// Stages in creation order
const (
	StageNew Stage = iota
	StageERP
	StageGateway
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "New"
	case StageERP:
		return "ERP"
	case StageGateway:
		return "Gateway"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}
