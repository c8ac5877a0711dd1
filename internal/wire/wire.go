package wire

import (
	"net/http"

	"edupersona/internal/adaptor"
	"edupersona/internal/data/repository"
	"edupersona/internal/usecase"
	"edupersona/pkg/metrics"
	"edupersona/pkg/middleware"
	"edupersona/pkg/ratelimit"
	"edupersona/pkg/token"
	"edupersona/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and the background workers main has to run.
type App struct {
	Router   *chi.Mux
	Service  *usecase.Service
	Limiters []*ratelimit.Limiter
	Metrics  *metrics.Metrics
}

// Wiring builds every service, handler and route.
func Wiring(
	repo *repository.Repository,
	tokens *token.Service,
	config *utils.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *App {
	loginLimiter := ratelimit.New(config.RateLimit.LoginPerMinute, config.RateLimit.LoginBurst)
	ipLimiter := ratelimit.New(config.RateLimit.LoginPerMinute*5, config.RateLimit.LoginBurst*5)

	service := usecase.NewService(repo, tokens, loginLimiter, config, m, logger)
	handler := adaptor.NewHandler(service, config, logger)

	gateway := middleware.NewAuthGateway(tokens, service.Sessions, service.Presence, config.Cookie.Name, m, logger)

	router := setupRouter(handler, gateway, ipLimiter, config, m, logger)

	return &App{
		Router:   router,
		Service:  service,
		Limiters: []*ratelimit.Limiter{loginLimiter, ipLimiter},
		Metrics:  m,
	}
}

func setupRouter(
	handler *adaptor.Handler,
	gateway *middleware.AuthGateway,
	ipLimiter *ratelimit.Limiter,
	config *utils.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.App.AllowedOrigins))
	r.Use(gateway.Middleware)

	wireAuth(r, handler.Auth, gateway, ipLimiter, logger)
	wirePresence(r, handler.Presence, gateway)
	wirePersona(r, handler.Persona, logger)

	gateway.SetPolicy(http.MethodGet, "/health", middleware.PolicyPublic)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	gateway.SetPolicy(http.MethodGet, "/metrics", middleware.PolicyPublic)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}
