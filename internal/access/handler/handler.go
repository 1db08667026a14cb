// Package handler exposes the project-access ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/platform/audit"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	"github.com/hafizsameer11/superCrm/pkg/platform/httputil"
)

// Service defines the access ledger operations the handler delegates to.
// Tenant scoping happens in the service; the handler only threads the caller.
type Service interface {
	Grant(ctx context.Context, caller middleware.Caller, companyID id.CompanyID, projectID id.ProjectID) (*models.Access, error)
	Revoke(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error
	UpdateStatus(ctx context.Context, caller middleware.Caller, accessID id.AccessID, status models.AccessStatus) (*models.Access, error)
	Get(ctx context.Context, caller middleware.Caller, accessID id.AccessID) (*models.Access, error)
	ListForCompany(ctx context.Context, caller middleware.Caller, companyID id.CompanyID) ([]*models.Access, error)
	Sync(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error
	TestConnection(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error
}

type Handler struct {
	service Service
	audit   *audit.Publisher
	logger  *slog.Logger
}

func New(service Service, publisher *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: publisher, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/companies/{companyID}/project-access", h.HandleGrant)
	r.Get("/companies/{companyID}/project-access", h.HandleList)
	r.Get("/project-access/{id}", h.HandleGet)
	r.Delete("/project-access/{id}", h.HandleRevoke)
	r.Patch("/project-access/{id}", h.HandleUpdateStatus)
	r.Post("/project-access/{id}/sync", h.HandleSync)
	r.Post("/project-access/{id}/test-connection", h.HandleTestConnection)
}

type GrantRequest struct {
	ProjectID string `json:"project_id"`
}

// HandleGrant creates a ledger entry and provisions it immediately. A
// provisioning failure still returns 201: the entry exists as partial_failed
// and the retry sweep owns it from there.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	companyID, err := id.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[GrantRequest](w, r, h.logger)
	if !ok {
		return
	}
	projectID, err := id.ParseProjectID(req.ProjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.Grant(ctx, caller, companyID, projectID)
	if err != nil {
		h.logger.WarnContext(ctx, "access grant failed",
			"error", err, "request_id", middleware.GetRequestID(ctx),
			"company_id", companyID.String(), "project_id", projectID.String())
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionAccessGranted,
		ActorID:   caller.UserID,
		CompanyID: companyID,
		ProjectID: projectID,
		Detail: map[string]string{
			"access_id": a.ID.String(),
			"status":    string(a.Status),
		},
		IP: middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusCreated, a)
}

// HandleList returns all ledger entries for a company.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	companyID, err := id.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.ListForCompany(ctx, middleware.GetCaller(ctx), companyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.Access{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleGet returns one ledger entry.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessID, err := id.ParseAccessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.Get(ctx, middleware.GetCaller(ctx), accessID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleRevoke revokes access locally and best-effort on the external platform.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	accessID, err := id.ParseAccessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Revoke(ctx, caller, accessID); err != nil {
		h.logger.WarnContext(ctx, "access revoke failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "access_id", accessID.String())
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(audit.Event{
		Action:  audit.ActionAccessRevoked,
		ActorID: caller.UserID,
		Detail:  map[string]string{"access_id": accessID.String()},
		IP:      middleware.GetRequestMeta(ctx).IP,
	})
	w.WriteHeader(http.StatusNoContent)
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateStatus applies an operator status change (suspend, reactivate).
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	accessID, err := id.ParseAccessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[UpdateStatusRequest](w, r, h.logger)
	if !ok {
		return
	}
	a, err := h.service.UpdateStatus(ctx, caller, accessID, models.AccessStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(audit.Event{
		Action:  audit.ActionAccessUpdated,
		ActorID: caller.UserID,
		Detail: map[string]string{
			"access_id": accessID.String(),
			"status":    req.Status,
		},
		IP: middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleSync pushes the current company state to the external platform.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessID, err := id.ParseAccessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Sync(ctx, middleware.GetCaller(ctx), accessID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// HandleTestConnection probes the external platform's health endpoint.
func (h *Handler) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessID, err := id.ParseAccessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.TestConnection(ctx, middleware.GetCaller(ctx), accessID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reachable"})
}
