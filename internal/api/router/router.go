package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TCaken/loancrm/internal/http/handlers"
	httpmiddleware "github.com/TCaken/loancrm/internal/http/middleware"
	"github.com/TCaken/loancrm/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Reconcile          *handlers.ReconcileHandler
	Appointments       *handlers.AppointmentsHandler
	Timeslots          *handlers.TimeslotsHandler
	Dashboard          *handlers.DashboardHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// FeedAPIKey guards the attendance-feed endpoints. Empty disables them.
	FeedAPIKey    string
	FeedRateLimit float64
	FeedRateBurst int

	// AgentJWTSecret guards the agent endpoints. Empty disables them.
	AgentJWTSecret string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Attendance-feed integration endpoints. The dialer export posts here
	// with a static API key; the rate limit absorbs its bursty retries.
	if cfg.Reconcile != nil {
		r.Route("/reconcile", func(feed chi.Router) {
			feed.Use(httpmiddleware.APIKey(cfg.FeedAPIKey))
			if cfg.FeedRateLimit > 0 {
				feed.Use(httpmiddleware.RateLimit(cfg.FeedRateLimit, cfg.FeedRateBurst))
			}
			feed.Post("/run", cfg.Reconcile.RunPass)
			feed.Post("/jobs", cfg.Reconcile.EnqueuePass)
			feed.Get("/jobs/{jobID}", cfg.Reconcile.JobStatus)
		})
	}

	// Agent endpoints
	r.Group(func(agent chi.Router) {
		agent.Use(httpmiddleware.AgentJWT(cfg.AgentJWTSecret))

		if cfg.Appointments != nil {
			agent.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.Appointments.Create)
				r.Get("/{kind}/{id}", cfg.Appointments.Get)
				r.Post("/{kind}/{id}/move", cfg.Appointments.Move)
				r.Post("/{kind}/{id}/status", cfg.Appointments.SetStatus)
			})
		}
		if cfg.Timeslots != nil {
			agent.Get("/timeslots", cfg.Timeslots.List)
		}
		if cfg.Dashboard != nil {
			agent.Get("/dashboard", cfg.Dashboard.GetDashboard)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
