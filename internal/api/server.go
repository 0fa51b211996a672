// Package api exposes the HTTP control surface of the console: operator
// authentication, softphone call control, CRM leads, call logs and the
// PBX reporting passthrough.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/pbxapi"
	"github.com/dialdesk/dialdesk/internal/softphone"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	secret    []byte
	agents    database.AgentRepository
	leads     database.LeadRepository
	callLogs  database.CallLogRepository
	callbacks database.CallbackRepository
	sysConfig database.SystemConfigRepository
	engines   *softphone.Manager
	pbx       *pbxapi.Client
	registry  *prometheus.Registry
	logger    *slog.Logger

	apiLimiter   *middleware.IPRateLimiter
	loginLimiter *middleware.IPRateLimiter
}

// ServerOptions carries the dependencies for NewServer.
type ServerOptions struct {
	Secret    []byte
	Agents    database.AgentRepository
	Leads     database.LeadRepository
	CallLogs  database.CallLogRepository
	Callbacks database.CallbackRepository
	SysConfig database.SystemConfigRepository
	Engines   *softphone.Manager
	PBX       *pbxapi.Client
	Registry  *prometheus.Registry
	Logger    *slog.Logger
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		router:       chi.NewRouter(),
		secret:       opts.Secret,
		agents:       opts.Agents,
		leads:        opts.Leads,
		callLogs:     opts.CallLogs,
		callbacks:    opts.Callbacks,
		sysConfig:    opts.SysConfig,
		engines:      opts.Engines,
		pbx:          opts.PBX,
		registry:     opts.Registry,
		logger:       opts.Logger.With("subsystem", "api"),
		apiLimiter:   middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		loginLimiter: middleware.NewIPRateLimiter(middleware.LoginRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter cleanup loops.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.loginLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RateLimit(s.apiLimiter))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Login is unauthenticated and carries its own, tighter limiter.
		r.With(middleware.RateLimit(s.loginLimiter)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.secret))

			r.Get("/auth/me", s.handleMe)

			// Softphone control. Every route acts on the calling
			// operator's own engine.
			r.Route("/call", func(r chi.Router) {
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Post("/dial", s.handleDial)
				r.Post("/hangup", s.handleHangup)
				r.Post("/answer", s.handleAnswer)
				r.Post("/mute", s.handleMute)
				r.Post("/transfer", s.handleTransfer)
				r.Get("/state", s.handleCallState)
				r.Get("/events", s.handleCallEvents)
				r.Post("/disposition", s.handleDisposition)
				r.Post("/dismiss", s.handleDismiss)
			})

			r.Route("/leads", func(r chi.Router) {
				r.Get("/", s.handleListLeads)
				r.Post("/", s.handleCreateLead)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLead)
					r.Put("/", s.handleUpdateLead)
					r.Delete("/", s.handleDeleteLead)
				})
			})

			r.Route("/call-logs", func(r chi.Router) {
				r.Get("/", s.handleListCallLogs)
				r.Get("/stats", s.handleCallLogStats)
				r.Get("/{id}", s.handleGetCallLog)
			})

			r.Route("/callbacks", func(r chi.Router) {
				r.Get("/", s.handleListCallbacks)
				r.Post("/", s.handleCreateCallback)
				r.Put("/{id}/complete", s.handleCompleteCallback)
				r.Delete("/{id}", s.handleDeleteCallback)
			})

			// PBX reporting passthrough for supervisors.
			r.Route("/pbx", func(r chi.Router) {
				r.Use(middleware.RequireRole("supervisor", "admin"))
				r.Get("/agents", s.handlePBXAgentStatus)
				r.Get("/campaigns", s.handlePBXCampaignStats)
				r.Get("/recordings/{callID}", s.handlePBXRecording)
			})

			// Admin-only account and settings management.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))

				r.Route("/agents", func(r chi.Router) {
					r.Get("/", s.handleListAgents)
					r.Post("/", s.handleCreateAgent)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetAgent)
						r.Put("/", s.handleUpdateAgent)
						r.Delete("/", s.handleDeleteAgent)
					})
				})

				r.Get("/settings", s.handleGetSettings)
				r.Put("/settings", s.handleUpdateSettings)
			})
		})
	})

	s.logger.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
