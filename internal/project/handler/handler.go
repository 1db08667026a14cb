// Package handler exposes project administration over HTTP. All routes are
// mounted behind the super-admin middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hafizsameer11/superCrm/internal/platform/audit"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/project/models"
	"github.com/hafizsameer11/superCrm/internal/project/service"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	"github.com/hafizsameer11/superCrm/pkg/platform/httputil"
)

// Service defines the project operations the handler delegates to.
type Service interface {
	Create(ctx context.Context, caller middleware.Caller, in service.CreateInput) (*models.Project, error)
	Update(ctx context.Context, caller middleware.Caller, projectID id.ProjectID, in service.UpdateInput) (*models.Project, error)
	RotateSSOSecret(ctx context.Context, caller middleware.Caller, projectID id.ProjectID) error
	Get(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
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
	r.Post("/admin/projects", h.HandleCreate)
	r.Get("/admin/projects", h.HandleList)
	r.Get("/admin/projects/{id}", h.HandleGet)
	r.Put("/admin/projects/{id}", h.HandleUpdate)
	r.Post("/admin/projects/{id}/rotate-sso-secret", h.HandleRotateSSOSecret)
}

type CreateProjectRequest struct {
	Name            string            `json:"name"`
	Slug            string            `json:"slug"`
	Description     string            `json:"description,omitempty"`
	IntegrationType string            `json:"integration_type"`
	AuthType        string            `json:"auth_type"`
	BaseURL         string            `json:"base_url"`
	SSOBaseURL      string            `json:"sso_base_url,omitempty"`
	CallbackURL     string            `json:"callback_url,omitempty"`
	Endpoints       map[string]string `json:"endpoints,omitempty"`
	APIKey          string            `json:"api_key,omitempty"`
	APISecret       string            `json:"api_secret,omitempty"`
	TokenLifetime   int               `json:"sso_token_lifetime_seconds,omitempty"`
}

// HandleCreate registers a new external project.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	req, ok := httputil.Decode[CreateProjectRequest](w, r, h.logger)
	if !ok {
		return
	}

	p, err := h.service.Create(ctx, caller, service.CreateInput{
		Name:            req.Name,
		Slug:            req.Slug,
		Description:     req.Description,
		IntegrationType: models.IntegrationType(req.IntegrationType),
		AuthType:        req.AuthType,
		BaseURL:         req.BaseURL,
		SSOBaseURL:      req.SSOBaseURL,
		CallbackURL:     req.CallbackURL,
		Endpoints:       req.Endpoints,
		APIKey:          req.APIKey,
		APISecret:       req.APISecret,
		TokenLifetime:   time.Duration(req.TokenLifetime) * time.Second,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "project create failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "slug", req.Slug)
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionProjectCreated,
		ActorID:   caller.UserID,
		ProjectID: p.ID,
		Detail:    map[string]string{"slug": p.Slug},
		IP:        middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type UpdateProjectRequest struct {
	Name          *string           `json:"name,omitempty"`
	Description   *string           `json:"description,omitempty"`
	AuthType      *string           `json:"auth_type,omitempty"`
	BaseURL       *string           `json:"base_url,omitempty"`
	SSOBaseURL    *string           `json:"sso_base_url,omitempty"`
	CallbackURL   *string           `json:"callback_url,omitempty"`
	Endpoints     map[string]string `json:"endpoints,omitempty"`
	APIKey        *string           `json:"api_key,omitempty"`
	APISecret     *string           `json:"api_secret,omitempty"`
	TokenLifetime *int              `json:"sso_token_lifetime_seconds,omitempty"`
	Active        *bool             `json:"active,omitempty"`
}

// HandleUpdate applies a partial edit; absent fields are left untouched.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	projectID, err := id.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[UpdateProjectRequest](w, r, h.logger)
	if !ok {
		return
	}

	in := service.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		AuthType:    req.AuthType,
		BaseURL:     req.BaseURL,
		SSOBaseURL:  req.SSOBaseURL,
		CallbackURL: req.CallbackURL,
		Endpoints:   req.Endpoints,
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
		Active:      req.Active,
	}
	if req.TokenLifetime != nil {
		lifetime := time.Duration(*req.TokenLifetime) * time.Second
		in.TokenLifetime = &lifetime
	}

	p, err := h.service.Update(ctx, caller, projectID, in)
	if err != nil {
		h.logger.WarnContext(ctx, "project update failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "project_id", projectID.String())
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionProjectUpdated,
		ActorID:   caller.UserID,
		ProjectID: p.ID,
		Detail:    map[string]string{"slug": p.Slug},
		IP:        middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleRotateSSOSecret replaces the project's token signing secret. Tokens
// minted under the old secret stop verifying immediately.
func (h *Handler) HandleRotateSSOSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	projectID, err := id.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RotateSSOSecret(ctx, caller, projectID); err != nil {
		h.logger.WarnContext(ctx, "sso secret rotation failed",
			"error", err, "request_id", middleware.GetRequestID(ctx), "project_id", projectID.String())
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(audit.Event{
		Action:    audit.ActionSecretRotated,
		ActorID:   caller.UserID,
		ProjectID: projectID,
		IP:        middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "rotated"})
}

// HandleGet returns one project.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleList returns every registered project.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	httputil.WriteJSON(w, http.StatusOK, projects)
}
