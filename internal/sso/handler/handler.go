// Package handler exposes the SSO hand-off over HTTP: minting the redirect
// into an external project and consuming the token on the way back.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/platform/audit"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	ratemodels "github.com/hafizsameer11/superCrm/internal/ratelimit/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	ssomodels "github.com/hafizsameer11/superCrm/internal/sso/models"
	ssoservice "github.com/hafizsameer11/superCrm/internal/sso/service"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
	"github.com/hafizsameer11/superCrm/pkg/platform/httputil"
)

// TokenService mints, consumes and revokes SSO tokens.
type TokenService interface {
	BuildRedirectURL(ctx context.Context, p ssoservice.ProjectInfo, a *accessmodels.Access, userID id.UserID, meta ssoservice.Meta) (string, error)
	Consume(ctx context.Context, p ssoservice.ProjectInfo, token string) (*ssomodels.Claims, error)
	Revoke(ctx context.Context, jti uuid.UUID) error
}

// ProjectDirectory resolves a project's decrypted SSO configuration.
type ProjectDirectory interface {
	SSOInfo(ctx context.Context, projectID id.ProjectID) (ssoservice.ProjectInfo, error)
}

// AccessDirectory looks up the caller's ledger entry for a project.
type AccessDirectory interface {
	FindByCompanyAndProject(ctx context.Context, companyID id.CompanyID, projectID id.ProjectID) (*accessmodels.Access, error)
}

// AdmissionGate applies the per-access rate limits to redirect minting.
type AdmissionGate interface {
	Admit(ctx context.Context, a *accessmodels.Access) (*ratemodels.Decision, error)
	Record(ctx context.Context, a *accessmodels.Access, success bool) error
}

type Handler struct {
	tokens   TokenService
	projects ProjectDirectory
	accesses AccessDirectory
	gate     AdmissionGate
	audit    *audit.Publisher
	logger   *slog.Logger
}

func New(tokens TokenService, projects ProjectDirectory, accesses AccessDirectory, gate AdmissionGate, publisher *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		projects: projects,
		accesses: accesses,
		gate:     gate,
		audit:    publisher,
		logger:   logger,
	}
}

// Register mounts the authenticated redirect endpoint and the operator revoke.
func (h *Handler) Register(r chi.Router) {
	r.Post("/projects/{id}/sso-redirect", h.HandleRedirect)
}

// RegisterPublic mounts the callback endpoint. The external platform presents
// the token itself; the token signature is the authentication.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/projects/{id}/sso-callback", h.HandleCallback)
}

// RegisterAdmin mounts the operator revoke endpoint.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/sso-tokens/{jti}/revoke", h.HandleRevoke)
}

// HandleRedirect mints a single-use token for the caller and returns the
// external SSO URL to send the browser to. Redirects draw from the same
// per-access quota as API calls and respect the circuit breaker.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)
	projectID, err := id.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.accesses.FindByCompanyAndProject(ctx, caller.CompanyID, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "company has no access to this project"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load project access"))
		return
	}

	decision, err := h.gate.Admit(ctx, a)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !decision.Allowed {
		httputil.WriteError(w, denialError(decision))
		return
	}

	info, err := h.projects.SSOInfo(ctx, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	meta := middleware.GetRequestMeta(ctx)
	redirect, err := h.tokens.BuildRedirectURL(ctx, info, a, caller.UserID, ssoservice.Meta{
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Device:    meta.DeviceName,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "sso redirect failed",
			"error", err, "request_id", middleware.GetRequestID(ctx),
			"access_id", a.ID.String())
		httputil.WriteError(w, err)
		return
	}
	if err := h.gate.Record(ctx, a, true); err != nil {
		h.logger.ErrorContext(ctx, "record sso redirect failed", "error", err, "access_id", a.ID.String())
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionSSOIssued,
		ActorID:   caller.UserID,
		CompanyID: caller.CompanyID,
		ProjectID: projectID,
		Detail:    map[string]string{"access_id": a.ID.String()},
		IP:        meta.IP,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"redirect_url": redirect})
}

type CallbackRequest struct {
	Token string `json:"token"`
}

// CallbackResponse is the identity payload the external platform receives for
// a valid token.
type CallbackResponse struct {
	UserID            string `json:"user_id"`
	CompanyID         string `json:"company_id"`
	AccessID          string `json:"access_id"`
	ExternalUserID    string `json:"external_user_id,omitempty"`
	ExternalCompanyID string `json:"external_company_id,omitempty"`
}

// HandleCallback burns a presented token and returns the identity it carried.
// Each token verifies exactly once; replays and expired tokens are rejected
// with distinct error codes.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[CallbackRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}

	info, err := h.projects.SSOInfo(ctx, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	claims, err := h.tokens.Consume(ctx, info, req.Token)
	if err != nil {
		h.logger.WarnContext(ctx, "sso token rejected",
			"error", err, "request_id", middleware.GetRequestID(ctx),
			"project_id", projectID.String())
		httputil.WriteError(w, err)
		return
	}

	h.audit.Emit(audit.Event{
		Action:    audit.ActionSSOConsumed,
		ProjectID: projectID,
		Detail: map[string]string{
			"jti":     claims.ID,
			"user_id": claims.Subject,
		},
		IP: middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, &CallbackResponse{
		UserID:            claims.Subject,
		CompanyID:         claims.CompanyID,
		AccessID:          claims.AccessID,
		ExternalUserID:    claims.ExternalUserID,
		ExternalCompanyID: claims.ExternalCompanyID,
	})
}

// HandleRevoke invalidates an issued token before it is used.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jti, err := uuid.Parse(chi.URLParam(r, "jti"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid token id"))
		return
	}
	if err := h.tokens.Revoke(ctx, jti); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(audit.Event{
		Action:  audit.ActionSSORevoked,
		ActorID: middleware.GetCaller(ctx).UserID,
		Detail:  map[string]string{"jti": jti.String()},
		IP:      middleware.GetRequestMeta(ctx).IP,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func denialError(d *ratemodels.Decision) error {
	retry := int(d.RetryAfter.Seconds())
	if d.Reason == ratemodels.DenyCircuitOpen {
		return dErrors.New(dErrors.CodeCircuitOpen,
			fmt.Sprintf("integration temporarily unavailable, retry in %ds", retry))
	}
	return dErrors.New(dErrors.CodeRateLimited,
		fmt.Sprintf("rate limit exceeded, retry in %ds", retry))
}
