package lead

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	resp "github.com/zllovesuki/billing-orchestrator/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Process *Process
	Logger  *zap.Logger
}

// Service is the lead API router
type Service struct {
	ServiceOptions
	validate *validator.Validate
}

// NewService will create an instance of the lead API router
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

// CreateRequest contains the fields of a new lead
type CreateRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Company     string `json:"company" validate:"required"`
	Title       string `json:"title"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedInUrl" validate:"omitempty,url"`
}

func (s *Service) createLead(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages(err.Error()))
		return
	}
	l, err := s.Process.Start(r.Context(), &Lead{
		Name:        req.Name,
		Email:       req.Email,
		Company:     req.Company,
		Title:       req.Title,
		Phone:       req.Phone,
		LinkedInURL: req.LinkedInURL,
	})
	if err != nil {
		orchestrator.WriteError(w, r, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, l)
}

func (s *Service) enrichLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.Process.Enrich(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
	case errors.Is(err, ErrInvalidState):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	case err != nil:
		orchestrator.WriteError(w, r, err)
	default:
		resp.WriteResponse(w, r, l)
	}
}

// Router serves /leads
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createLead)
	r.Post("/{id}/enrich", s.enrichLead)

	return r
}
