// Package httptransport assembles the HTTP surface: middleware stack, public
// routes, authenticated routes and the super-admin group.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "github.com/hafizsameer11/superCrm/internal/access/handler"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	projecthandler "github.com/hafizsameer11/superCrm/internal/project/handler"
	signuphandler "github.com/hafizsameer11/superCrm/internal/signup/handler"
	ssohandler "github.com/hafizsameer11/superCrm/internal/sso/handler"
	"github.com/hafizsameer11/superCrm/pkg/platform/httputil"
)

// Deps carries the wired handlers and transport configuration.
type Deps struct {
	Logger         *slog.Logger
	AuthSigningKey string

	Signup  *signuphandler.Handler
	Access  *accesshandler.Handler
	Project *projecthandler.Handler
	SSO     *ssohandler.Handler

	// Ready reports whether backing stores are reachable.
	Ready func() error
}

// NewRouter wires all endpoints with the middleware stack.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Metadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public surface: signup submission and the token callback. The callback
	// authenticates itself through the token signature.
	r.Group(func(pub chi.Router) {
		deps.Signup.RegisterPublic(pub)
		deps.SSO.RegisterPublic(pub)
	})

	// Everything else requires the platform bearer token.
	r.Group(func(priv chi.Router) {
		priv.Use(middleware.Authenticate(deps.AuthSigningKey, deps.Logger))

		deps.Access.Register(priv)
		deps.SSO.Register(priv)

		// Review queue and project administration. The services re-check the
		// super-admin flag; the middleware keeps the route map honest.
		priv.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireSuperAdmin)
			deps.Signup.Register(admin)
			deps.Project.Register(admin)
			deps.SSO.RegisterAdmin(admin)
		})
	})

	return r
}
