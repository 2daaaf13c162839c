package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	resp "github.com/zllovesuki/billing-orchestrator/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Process *Process
	Logger  *zap.Logger
}

// Service is the proposal API router
type Service struct {
	ServiceOptions
	validate *validator.Validate
}

// NewService will create an instance of the proposal API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Process == nil {
		return nil, fmt.Errorf("nil Process is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
		validate:       validator.New(),
	}, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
	case errors.Is(err, ErrInvalidState):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	default:
		orchestrator.WriteError(w, r, err)
	}
}

// CreateRequest contains the fields of a new proposal
type CreateRequest struct {
	Client     string          `json:"client" validate:"required"`
	Seller     string          `json:"seller" validate:"required"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// RejectRequest carries the reviewers' notes
type RejectRequest struct {
	Notes string `json:"notes" validate:"required"`
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

func (s *Service) createProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.TotalValue.IsPositive() {
		resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages("totalValue must be positive"))
		return
	}
	prop, err := s.Process.Start(r.Context(), &Proposal{
		Client:     req.Client,
		Seller:     req.Seller,
		TotalValue: req.TotalValue,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, prop)
}

func (s *Service) approveProposal(w http.ResponseWriter, r *http.Request) {
	prop, err := s.Process.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, prop)
}

func (s *Service) rejectProposal(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !s.decode(w, r, &req) {
		return
	}
	prop, err := s.Process.Reject(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, prop)
}

func (s *Service) getProposal(w http.ResponseWriter, r *http.Request) {
	prop, err := s.Process.Proposals.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.Logger.Error("Unable to get proposal", zap.Error(err))
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if prop == nil {
		writeError(w, r, ErrNotFound)
		return
	}
	resp.WriteResponse(w, r, prop)
}

// Router serves /proposals
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createProposal)
	r.Get("/{id}", s.getProposal)
	r.Post("/{id}/approve", s.approveProposal)
	r.Post("/{id}/reject", s.rejectProposal)

	return r
}
