// Package api serves the storefront's JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/greenshop/internal/auth"
	"github.com/sells-group/greenshop/internal/config"
	"github.com/sells-group/greenshop/internal/footprint"
	"github.com/sells-group/greenshop/internal/metrics"
	"github.com/sells-group/greenshop/internal/store"
)

// Deps are the collaborators the API needs.
type Deps struct {
	Store     store.Store
	Footprint *footprint.Service
	Issuer    *auth.Issuer
	Metrics   *metrics.Metrics // optional
	Server    config.ServerConfig
	PageSize  int
}

// Server holds the router and the state its handlers share.
type Server struct {
	store     store.Store
	footprint *footprint.Service
	issuer    *auth.Issuer
	pageSize  int
	limiter   *rateLimiter
	router    chi.Router
}

// New builds the server and its routes.
func New(d Deps) *Server {
	s := &Server{
		store:     d.Store,
		footprint: d.Footprint,
		issuer:    d.Issuer,
		pageSize:  d.PageSize,
	}
	if s.pageSize <= 0 {
		s.pageSize = 12
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if d.Server.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(d.Server.RateLimitRPS, d.Server.RateLimitBurst)
		r.Use(s.limiter.handler)
	}

	r.Get("/health", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleListProducts)
		r.Get("/products/{id}", s.handleGetProduct)
		r.Post("/users/register", s.handleRegister)
		r.Post("/users/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.issuer))

			r.Get("/users/profile", s.handleGetProfile)
			r.Put("/users/profile", s.handleUpdateProfile)

			r.Get("/cart", s.handleGetCart)
			r.Post("/cart/add", s.handleAddToCart)
			r.Put("/cart/update", s.handleUpdateCart)
			r.Delete("/cart/remove/{productId}", s.handleRemoveFromCart)

			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders/mine", s.handleMyOrders)
			r.Get("/orders/{id}", s.handleGetOrder)

			r.Get("/recommend", s.handleRecommend)
			r.Get("/footprint", s.handleFootprint)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/products", s.handleCreateProduct)
				r.Put("/products/{id}", s.handleUpdateProduct)
				r.Delete("/products/{id}", s.handleDeleteProduct)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, notFound("not found - %s", r.URL.Path))
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run performs background upkeep until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.limiter == nil {
		<-ctx.Done()
		return
	}
	s.limiter.run(ctx, 5*time.Minute)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
