// Package httptransport is the HTTP edge: routing, middleware, and the
// translation between wire DTOs and domain types. Handlers stay thin;
// authorization and audit decisions live in the services they call.
package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frametruth/internal/ratelimit"
	"frametruth/pkg/platform/httputil"
)

// Credential endpoints get a tight per-address attempt limit; everything
// else is gated by authentication instead.
const (
	loginAttemptLimit  = 10
	loginAttemptWindow = time.Minute
)

// NewRouter assembles the full route tree. The authenticator guards
// everything except registration, login, health, and metrics.
func NewRouter(authn *Authenticator, authH *AuthHandler, fileH *FileHandler, auditH *AuditHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestContext)
	r.Use(ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteData(w, http.StatusOK, "ok", nil)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(ratelimit.New(loginAttemptLimit, loginAttemptWindow)))
		authH.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)
		authH.RegisterProtected(r)
		fileH.Register(r)
		auditH.Register(r)
	})

	return r
}
