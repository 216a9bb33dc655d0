package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/cabinetworks/mto/internal/ledger"
	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/observability"
	"github.com/cabinetworks/mto/internal/planning"
	"github.com/cabinetworks/mto/internal/procurement"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/reservation"
	"github.com/cabinetworks/mto/internal/shared"
	"github.com/cabinetworks/mto/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Redis              redis.UniversalClient
	LedgerHandler      *ledger.Handler
	MTOHandler         *mto.Handler
	ReservationHandler *reservation.Handler
	ProcurementHandler *procurement.Handler
	PlanningHandler    *planning.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
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

	cfg := params.Config
	if cfg == nil {
		cfg = &Config{RateLimitRequests: 120, RateLimitWindow: time.Minute}
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.ActorHeader, cfg.PermissionsHeader))
		r.Use(RateLimiter(params.Redis, "ratelimit:api", cfg.RateLimitRequests, cfg.RateLimitWindow))

		mounts := []interface{ MountRoutes(chi.Router) }{}
		if params.LedgerHandler != nil {
			mounts = append(mounts, params.LedgerHandler)
		}
		if params.MTOHandler != nil {
			mounts = append(mounts, params.MTOHandler)
		}
		if params.ReservationHandler != nil {
			mounts = append(mounts, params.ReservationHandler)
		}
		if params.ProcurementHandler != nil {
			mounts = append(mounts, params.ProcurementHandler)
		}
		if params.PlanningHandler != nil {
			mounts = append(mounts, params.PlanningHandler)
		}
		for _, m := range mounts {
			m.MountRoutes(r)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			guard := rbac.Middleware{Logger: params.Logger}
			r.Route("/jobs", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermMTOEdit, shared.PermInventoryEdit))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
