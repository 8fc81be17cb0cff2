package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vasiliy-maslov/storefront/internal/session"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Handlers struct {
	Users    *UserHandler
	Products *ProductHandler
	Carts    *CartHandler
	Orders   *OrderHandler
}

type tokenParser interface {
	Parse(raw string) (*session.Session, error)
}

func NewRouter(cfg RouterConfig, tokens tokenParser, h Handlers) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api", func(api chi.Router) {
		api.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			h.Users.RegisterPublicRoutes(r)
			h.Products.RegisterPublicRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(session.Authenticate(tokens))

				h.Users.RegisterRoutes(r)
				h.Carts.RegisterRoutes(r)
				h.Orders.RegisterRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(session.RequireRole(session.RoleSeller))
					h.Products.RegisterSellerRoutes(r)
					h.Orders.RegisterSellerRoutes(r)
				})
			})
		})

		api.Group(func(r chi.Router) {
			r.Use(session.Authenticate(tokens))
			h.Carts.RegisterStreamRoutes(r)
		})
	})

	return router
}
