// Package handler exposes the signup lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hafizsameer11/superCrm/internal/platform/audit"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/signup/models"
	"github.com/hafizsameer11/superCrm/internal/signup/service"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	"github.com/hafizsameer11/superCrm/pkg/platform/httputil"
)

// Service defines the orchestrator operations the handler delegates to.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.SignupRequest, error)
	Approve(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID, selected []id.ProjectID) (*service.ApprovalOutcome, error)
	Reject(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID, reason string) (*models.SignupRequest, error)
	Get(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID) (*models.SignupRequest, error)
	ListPending(ctx context.Context, caller middleware.Caller) ([]*models.SignupRequest, error)
}

type Handler struct {
	service Service
	audit   *audit.Publisher
	logger  *slog.Logger
}

func New(service Service, publisher *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: publisher, logger: logger}
}

// RegisterPublic mounts the unauthenticated submission endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/signup-requests", h.HandleSubmit)
}

// Register mounts the operator review endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/signup-requests", h.HandleListPending)
	r.Get("/signup-requests/{id}", h.HandleGet)
	r.Post("/signup-requests/{id}/approve", h.HandleApprove)
	r.Post("/signup-requests/{id}/reject", h.HandleReject)
}

type SubmitRequest struct {
	CompanyName  string   `json:"company_name"`
	VATNumber    string   `json:"vat_number,omitempty"`
	ContactName  string   `json:"contact_name"`
	ContactEmail string   `json:"contact_email"`
	Projects     []string `json:"projects"`
}

// HandleSubmit accepts a public signup application.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}

	projects := make([]id.ProjectID, 0, len(req.Projects))
	for _, raw := range req.Projects {
		p, err := id.ParseProjectID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		projects = append(projects, p)
	}

	created, err := h.service.Submit(ctx, service.SubmitInput{
		CompanyName:  req.CompanyName,
		VATNumber:    req.VATNumber,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Projects:     projects,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "signup submission failed",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionSignupSubmitted,
		CompanyID: created.CompanyID,
		Detail:    map[string]string{"signup_request_id": created.ID.String()},
		IP:        middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusCreated, created)
}

type ApproveRequest struct {
	// Projects narrows the approval to a subset of the requested projects.
	// Empty approves everything that was requested.
	Projects []string `json:"projects,omitempty"`
}

// HandleApprove reviews a pending request and provisions the selected projects.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	requestID, err := id.ParseSignupRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[ApproveRequest](w, r, h.logger)
	if !ok {
		return
	}
	var selected []id.ProjectID
	for _, raw := range req.Projects {
		p, perr := id.ParseProjectID(raw)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		selected = append(selected, p)
	}

	outcome, err := h.service.Approve(ctx, caller, requestID, selected)
	if err != nil {
		h.logger.ErrorContext(ctx, "signup approval failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "signup_request_id", requestID.String())
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionSignupApproved,
		ActorID:   caller.UserID,
		CompanyID: outcome.Request.CompanyID,
		Detail: map[string]string{
			"signup_request_id": requestID.String(),
			"status":            string(outcome.Request.Status),
		},
		IP: middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, outcome)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject closes a pending request.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	requestID, err := id.ParseSignupRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}

	rejected, err := h.service.Reject(ctx, caller, requestID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "signup rejection failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "signup_request_id", requestID.String())
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionSignupRejected,
		ActorID:   caller.UserID,
		CompanyID: rejected.CompanyID,
		Detail: map[string]string{
			"signup_request_id": requestID.String(),
			"reason":            req.Reason,
		},
		IP: middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, rejected)
}

// HandleGet returns one signup request.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseSignupRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.Get(ctx, middleware.GetCaller(ctx), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleListPending returns the review queue, oldest first.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, err := h.service.ListPending(ctx, middleware.GetCaller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if pending == nil {
		pending = []*models.SignupRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, pending)
}
