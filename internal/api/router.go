package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/api/middleware"
	"github.com/example/rocketshoes-cart/internal/auth"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	Logger     *zap.Logger

	// RateLimiter throttles cart mutations when set.
	RateLimiter *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.OptionalAuth(cfg.JWTService))

	r.Get("/health", cfg.Handlers.Health)
	r.Get("/products", cfg.Handlers.GetProducts)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", cfg.Handlers.GetCart)

		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.Middleware)
			}
			r.Post("/items", cfg.Handlers.AddToCart)
			r.Patch("/items/{id}", cfg.Handlers.UpdateAmount)
			r.Delete("/items/{id}", cfg.Handlers.RemoveFromCart)
		})
	})

	return r
}
