package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zllovesuki/billing-orchestrator/auth"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	resp "github.com/zllovesuki/billing-orchestrator/response"
	"github.com/zllovesuki/billing-orchestrator/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Orchestrator *Orchestrator
	Logger       *zap.Logger
}

// Service is the subscription and payment API router
type Service struct {
	ServiceOptions
	validate *validator.Validate
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Orchestrator == nil {
		return nil, fmt.Errorf("nil Orchestrator is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
		validate:       validator.New(),
	}, nil
}

// StepErrorResult is the result body of a 502
type StepErrorResult struct {
	Operation string `json:"operation"`
	Step      string `json:"step"`
	System    System `json:"system"`
	Cause     string `json:"cause"`
	Retryable bool   `json:"retryable"`
}

// WriteError maps a saga error onto the response envelope
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := AsStepError(err); ok {
		resp.WriteError(w, r, resp.ErrBadGateway().AddMessages(se.Error()).WithResult(StepErrorResult{
			Operation: se.Operation,
			Step:      se.Step,
			System:    se.System,
			Cause:     se.Cause.Error(),
			Retryable: se.Retryable(),
		}))
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrBusy):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	default:
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages(err.Error()))
		return false
	}
	return true
}

func (s *Service) logger(r *http.Request, fields ...zap.Field) *zap.Logger {
	return s.Logger.With(append(fields, zap.String("Caller", auth.CallerFromContext(r.Context())))...)
}

// CreateSubscriptionRequest contains the business fields of a new subscription
type CreateSubscriptionRequest struct {
	CustomerEmail   string          `json:"customerEmail" validate:"required,email"`
	CustomerName    string          `json:"customerName" validate:"required"`
	PlanID          string          `json:"planId" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	BillingCycle    string          `json:"billingCycle" validate:"required,oneof=day week month year"`
	PaymentMethodID string          `json:"paymentMethodId" validate:"required"`
}

func (s *Service) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages("amount must be positive"))
		return
	}

	logger := s.logger(r, zap.String("CustomerEmail", req.CustomerEmail))

	sub, err := s.Orchestrator.Create(r.Context(), &subscription.Subscription{
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		PlanID:          req.PlanID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		BillingCycle:    req.BillingCycle,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		logger.Debug("Create subscription rejected", zap.Error(err))
		WriteError(w, r, err)
		return
	}

	resp.WriteResponseWithStatus(w, r, http.StatusCreated, sub)
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Orchestrator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) listSagas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if s.Orchestrator.Recorder == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Saga logs are not recorded"))
		return
	}
	if _, err := s.Orchestrator.Get(ctx, id); err != nil {
		WriteError(w, r, err)
		return
	}
	logs, err := s.Orchestrator.Recorder.ListByEntity(ctx, id)
	if err != nil {
		s.logger(r, zap.String("SubscriptionID", id)).Error("Unable to list saga logs",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the saga logs"))
		return
	}
	resp.WriteResponse(w, r, logs)
}

// UpdatePlanRequest contains the plan to move the subscription to
type UpdatePlanRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

func (s *Service) updatePlan(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.Orchestrator.Update(r.Context(), chi.URLParam(r, "id"), req.PlanID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Orchestrator.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Orchestrator.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) resumeCreation(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Orchestrator.ResumeCreation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

// PaymentIntentRequest contains the amount to charge
type PaymentIntentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

func (s *Service) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req PaymentIntentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages("amount must be positive"))
		return
	}
	intent, err := s.Orchestrator.CreatePaymentIntent(r.Context(), req.Amount, req.Currency)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, intent)
}

// PaymentOutcomeRequest carries the invoice pair of a payment notification
type PaymentOutcomeRequest struct {
	GatewayInvoiceID string `json:"gatewayInvoiceId" validate:"required"`
	ERPInvoiceID     string `json:"erpInvoiceId" validate:"required"`
}

func (s *Service) paymentOutcome(w http.ResponseWriter, r *http.Request) {
	var req PaymentOutcomeRequest
	if !s.decode(w, r, &req) {
		return
	}
	var err error
	switch chi.URLParam(r, "outcome") {
	case "succeeded":
		err = s.Orchestrator.PaymentSucceeded(r.Context(), req.GatewayInvoiceID, req.ERPInvoiceID)
	case "failed":
		err = s.Orchestrator.PaymentFailed(r.Context(), req.GatewayInvoiceID, req.ERPInvoiceID)
	default:
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown payment outcome"))
		return
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) registerInvoice(w http.ResponseWriter, r *http.Request) {
	code, err := s.Orchestrator.RegisterInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, map[string]string{
		"erpInvoiceId": code,
	})
}

// SubscriptionRouter serves /subscriptions
func (s *Service) SubscriptionRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createSubscription)
	r.Get("/{id}", s.getSubscription)
	r.Get("/{id}/sagas", s.listSagas)
	r.Put("/{id}/plan", s.updatePlan)
	r.Post("/{id}/cancel", s.cancelSubscription)
	r.Post("/{id}/reactivate", s.reactivateSubscription)
	r.Post("/{id}/resume", s.resumeCreation)

	return r
}

// PaymentRouter serves /payments
func (s *Service) PaymentRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/intents", s.createPaymentIntent)
	r.Post("/invoices/{id}/register", s.registerInvoice)
	r.Post("/{outcome}", s.paymentOutcome)

	return r
}

// WebhookServiceOptions contains the configuration for WebhookService
type WebhookServiceOptions struct {
	Orchestrator *Orchestrator
	Secret       string
	Logger       *zap.Logger
}

// WebhookService receives the gateway's signed notifications
type WebhookService struct {
	WebhookServiceOptions
}

// NewWebhookService returns the webhook router
func NewWebhookService(option WebhookServiceOptions) (*WebhookService, error) {
	if option.Orchestrator == nil {
		return nil, fmt.Errorf("nil Orchestrator is invalid")
	}
	if option.Secret == "" {
		return nil, fmt.Errorf("empty Secret is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &WebhookService{
		WebhookServiceOptions: option,
	}, nil
}

func (s *WebhookService) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read body"))
		return
	}

	e, err := gateway.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), s.Secret)
	if errors.Is(err, gateway.ErrEventIgnored) {
		resp.WriteResponse(w, r, map[string]bool{"ignored": true})
		return
	}
	if err != nil {
		s.Logger.Warn("Rejected webhook", zap.Error(err))
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid webhook"))
		return
	}

	err = s.Orchestrator.HandleWebhook(r.Context(), e)
	if errors.Is(err, gateway.ErrEventIgnored) {
		resp.WriteResponse(w, r, map[string]bool{"ignored": true})
		return
	}
	if err != nil {
		// a non-2xx makes the gateway deliver it again
		WriteError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, map[string]bool{"ignored": false})
}

// Router serves the webhook endpoint
func (s *WebhookService) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.receive)

	return r
}
