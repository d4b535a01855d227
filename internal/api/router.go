package api

import (
	"net/http"
	"strings"

	"github.com/vidtube/accounts/internal/account"
	"github.com/vidtube/accounts/internal/auth"
	apperrors "github.com/vidtube/accounts/internal/errors"
	"github.com/vidtube/accounts/internal/events"
	"github.com/vidtube/accounts/internal/health"
	"github.com/vidtube/accounts/internal/logger"
	"github.com/vidtube/accounts/internal/metrics"
	"github.com/vidtube/accounts/internal/middleware"
)

const usersPrefix = "/api/v1/users"

// Deps are the handlers and shared services mounted by the router.
type Deps struct {
	Sessions     *auth.Service
	AuthHandlers *auth.Handlers
	Accounts     *account.Handlers
	Events       *events.Handler
	Health       *health.Handler
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
}

type Router struct {
	mux  *http.ServeMux
	deps Deps
	gate func(http.Handler) http.Handler
}

func NewRouter(deps Deps) *Router {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}

	r := &Router{
		mux:  http.NewServeMux(),
		deps: deps,
		gate: auth.Gate(deps.Sessions),
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped in the standard middleware chain.
func (r *Router) Handler() http.Handler {
	return middleware.Chain(r,
		logger.RecoveryMiddleware(r.deps.Logger),
		apperrors.RequestIDMiddleware,
		logger.LoggingMiddleware(r.deps.Logger),
		metrics.MetricsMiddleware(r.deps.Metrics),
		middleware.CORS(r.deps.CORSOrigins),
		middleware.MaxBody(r.deps.MaxBodyBytes),
	)
}

func (r *Router) setupRoutes() {
	if r.deps.Health != nil {
		r.mux.HandleFunc("GET /health", r.deps.Health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", r.deps.Health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", r.deps.Health.ReadinessHandler)
	}
	r.mux.Handle("GET /metrics", r.deps.Metrics.Handler())

	sessions := r.deps.AuthHandlers
	accounts := r.deps.Accounts

	// Public routes
	r.public("POST /register", accounts.Register)
	r.public("POST /login", sessions.Login)
	r.public("POST /refresh-token", sessions.Refresh)

	// Routes behind the access token gate
	r.protected("POST /logout", sessions.Logout)
	r.protected("POST /change-password", accounts.ChangePassword)
	r.protected("GET /current-user", accounts.CurrentUser)
	r.protected("PATCH /update-account", accounts.UpdateAccount)
	r.protected("PATCH /avatar", accounts.UpdateAvatar)
	r.protected("PATCH /cover-image", accounts.UpdateCoverImage)
	r.protected("GET /c/{username}", accounts.ChannelProfile)
	r.protected("GET /history", accounts.WatchHistory)

	if r.deps.Events != nil {
		r.mux.Handle("GET "+usersPrefix+"/sessions/ws", r.gate(http.HandlerFunc(r.deps.Events.ServeWS)))
	}
}

// public mounts h under the users prefix. pattern is "METHOD /path".
func (r *Router) public(pattern string, h apperrors.Handler) {
	r.mux.Handle(prefixed(pattern), apperrors.HandleFunc(h))
}

func (r *Router) protected(pattern string, h apperrors.Handler) {
	r.mux.Handle(prefixed(pattern), r.gate(apperrors.HandleFunc(h)))
}

func prefixed(pattern string) string {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		return usersPrefix + pattern
	}
	return method + " " + usersPrefix + path
}
