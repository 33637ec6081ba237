package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/circulation-backend/api/controllers"
	"github.com/angelmondragon/circulation-backend/api/middleware"
	"github.com/angelmondragon/circulation-backend/internal/loans"
	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/circulation-backend/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Loans       loans.Service
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/public/loans/top-chapters", controllers.TopChapters(deps.Loans, logg))

		r.Route("/members/{"+middleware.MemberIDParam+"}/loans", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireMemberScope(logg))

			r.With(middleware.Idempotency(deps.Idempotency, logg, middleware.BorrowIdempotencyTTL)).
				Post("/", controllers.LoanBorrow(deps.Loans, logg))
			r.With(middleware.Idempotency(deps.Idempotency, logg, middleware.ReturnIdempotencyTTL)).
				Post("/{loanGroupID}/return", controllers.LoanReturn(deps.Loans, logg))
			r.Get("/history", controllers.LoanHistory(deps.Loans, logg))
		})
	})

	return r
}
