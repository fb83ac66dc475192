package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avtovin/avtovin-backend/api/controllers"
	"github.com/avtovin/avtovin-backend/api/middleware"
	"github.com/avtovin/avtovin-backend/internal/ledger"
	"github.com/avtovin/avtovin-backend/internal/notifier"
	"github.com/avtovin/avtovin-backend/internal/settlements"
	"github.com/avtovin/avtovin-backend/internal/visits"
	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/db"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           *redis.Client
	Registry        *prometheus.Registry
	VisitService    visits.Service
	LedgerService   ledger.Service
	SettlementsSvc  settlements.Service
	NotifierService *notifier.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["database"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		recorderRoles := middleware.RequireRole(logg,
			string(enums.RolePartnerManager), string(enums.RoleAdmin))
		adminOnly := middleware.RequireRole(logg, string(enums.RoleAdmin))
		managerOnly := middleware.RequireRole(logg, string(enums.RolePartnerManager))

		r.Route("/visits", func(r chi.Router) {
			r.With(recorderRoles).Post("/", controllers.RecordVisit(deps.VisitService, logg))
			r.Get("/", controllers.ListVisits(deps.VisitService, logg))
			r.Get("/{id}", controllers.GetVisit(deps.VisitService, logg))
		})

		r.Route("/users/{id}/balance", func(r chi.Router) {
			r.Get("/", controllers.GetUserBalance(deps.LedgerService, logg))
			r.With(adminOnly).Post("/reconcile", controllers.ReconcileUserBalance(deps.LedgerService, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/", controllers.CreateSettlementBatch(deps.SettlementsSvc, logg))
			r.Get("/", controllers.ListSettlements(deps.SettlementsSvc, logg))
			r.Get("/{id}", controllers.GetSettlement(deps.SettlementsSvc, logg))
			r.Patch("/{id}", controllers.UpdateSettlement(deps.SettlementsSvc, logg))
			r.Delete("/{id}", controllers.DeleteSettlement(deps.SettlementsSvc, logg))
		})

		r.Route("/partners/my/finances", func(r chi.Router) {
			r.Use(managerOnly)
			r.Get("/", controllers.GetMyFinances(deps.SettlementsSvc, logg))
			r.Post("/receipt", controllers.SubmitReceipt(deps.SettlementsSvc, logg))
		})

		r.With(recorderRoles).Post("/events/notify", controllers.NotifyUser(deps.NotifierService, logg))
	})

	return r
}
