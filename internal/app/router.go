package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskpulse/taskpulse/internal/chat"
	"github.com/taskpulse/taskpulse/internal/files"
	"github.com/taskpulse/taskpulse/internal/identity"
	"github.com/taskpulse/taskpulse/internal/kpis"
	"github.com/taskpulse/taskpulse/internal/notifications"
	"github.com/taskpulse/taskpulse/internal/observability"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/reports"
	"github.com/taskpulse/taskpulse/internal/tasks"
	"github.com/taskpulse/taskpulse/internal/teams"
	"github.com/taskpulse/taskpulse/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	IdentityHandler     *identity.Handler
	TaskHandler         *tasks.Handler
	NotificationHandler *notifications.Handler
	ChatHandler         *chat.Handler
	TeamHandler         *teams.Handler
	KPIHandler          *kpis.Handler
	FileHandler         *files.Handler
	ReportHandler       *reports.Handler
	RealtimeHandler     *realtime.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with TaskPulse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequestTimeout(params.Config))

			r.Route("/auth", params.IdentityHandler.MountRoutes)

			r.Group(func(r chi.Router) {
				r.Use(params.IdentityHandler.Auth().RequireAuth)

				r.Route("/tasks", params.TaskHandler.MountRoutes)
				r.Route("/notifications", params.NotificationHandler.MountRoutes)
				r.Route("/chat", params.ChatHandler.MountRoutes)
				r.Route("/teams", params.TeamHandler.MountRoutes)
				r.Route("/kpis", params.KPIHandler.MountRoutes)
				r.Route("/files", params.FileHandler.MountRoutes)
				r.Route("/reports", params.ReportHandler.MountRoutes)
			})
		})

		// The event stream is a long-lived response; the request timeout
		// must not cancel it. Write deadlines are enforced per event
		// inside the realtime handler.
		r.Group(func(r chi.Router) {
			r.Use(params.IdentityHandler.Auth().RequireAuth)
			r.Route("/realtime", params.RealtimeHandler.MountRoutes)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
