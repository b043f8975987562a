package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

type RouterConfig struct {
	Cart           *CartHandler
	Metrics        http.Handler
	Log            *logger.Logger
	RequestTimeout time.Duration
	MaxBodySize    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware(cfg.Log))
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(MaxBodySize(cfg.MaxBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		cfg.Cart.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Get("/badge", cfg.Cart.Badge)
			r.Post("/sync", cfg.Cart.Sync)
			r.Post("/items", cfg.Cart.AddItem)
			r.Put("/items/{product_id}", cfg.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
		})
	})

	return r
}
