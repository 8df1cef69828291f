package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sharedwishlist/api/controllers"
	wishlistcontrollers "github.com/angelmondragon/sharedwishlist/api/controllers/wishlists"
	"github.com/angelmondragon/sharedwishlist/api/middleware"
	"github.com/angelmondragon/sharedwishlist/internal/auth"
	"github.com/angelmondragon/sharedwishlist/internal/realtime/ws"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	"github.com/angelmondragon/sharedwishlist/pkg/auth/session"
	"github.com/angelmondragon/sharedwishlist/pkg/config"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the router hands to controllers and middleware.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Health   map[string]controllers.Pinger
	Limiter  rateLimiter
	Sessions session.AccessSessionChecker
	Gatherer prometheus.Gatherer

	Auth      auth.Service
	Register  auth.RegisterService
	Wishlists wishlists.Service
	Realtime  *ws.Server
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		if deps.Limiter != nil {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.Limiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, deps.Limiter, logg)).Post("/register", controllers.AuthRegister(deps.Register, deps.Auth, logg))
		} else {
			r.Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/register", controllers.AuthRegister(deps.Register, deps.Auth, logg))
		}
		r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Get("/realtime", controllers.RealtimeConnect(deps.Realtime, logg))

		r.Route("/wishlists", func(r chi.Router) {
			r.Get("/", wishlistcontrollers.List(deps.Wishlists, logg))
			r.Post("/", wishlistcontrollers.Create(deps.Wishlists, logg))

			r.Route("/{wishlistId}", func(r chi.Router) {
				r.Get("/", wishlistcontrollers.Get(deps.Wishlists, logg))
				r.Put("/", wishlistcontrollers.Rename(deps.Wishlists, logg))
				r.Delete("/", wishlistcontrollers.Delete(deps.Wishlists, logg))

				r.Post("/invite", wishlistcontrollers.Invite(deps.Wishlists, logg))
				r.Delete("/members/{memberId}", wishlistcontrollers.RemoveMember(deps.Wishlists, logg))

				r.Post("/products", wishlistcontrollers.AddProduct(deps.Wishlists, logg))
				r.Route("/products/{productId}", func(r chi.Router) {
					r.Put("/", wishlistcontrollers.UpdateProduct(deps.Wishlists, logg))
					r.Delete("/", wishlistcontrollers.DeleteProduct(deps.Wishlists, logg))
					r.Post("/comments", wishlistcontrollers.AddComment(deps.Wishlists, logg))
					r.Post("/reactions", wishlistcontrollers.ToggleReaction(deps.Wishlists, logg))
				})
			})
		})
	})

	return r
}
