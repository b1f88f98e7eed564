package router

import (
	"net/http"

	"ecotrace-api/internal/handler"
	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// PublicPaths are served without credentials.
var PublicPaths = []string{
	"/api/v1/health",
	"/api/v1/ready",
	"/api/v1/products/preview",
}

// Config holds the configuration for creating a router.
type Config struct {
	Handler             *handler.Handler
	ProductHandler      *handler.ProductHandler
	RegistrationHandler *handler.RegistrationHandler
	ConsumerHandler     *handler.ConsumerHandler
	RecyclerHandler     *handler.RecyclerHandler
	RecyclingHandler    *handler.RecyclingHandler
	AdminHandler        *handler.AdminHandler
	AuthMiddleware      func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required). The QR code URL lands here.
	if cfg.ProductHandler != nil {
		r.Get("/scan", cfg.ProductHandler.Preview)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.ProductHandler != nil {
				r.Get("/products/preview", cfg.ProductHandler.Preview)

				r.Route("/manufacturers/{manufacturer_id}/products", func(r chi.Router) {
					r.Use(middleware.RequireRole(model.RoleManufacturer))
					r.Post("/", cfg.ProductHandler.Issue)
					r.Delete("/{product_id}/instances/{serial}", cfg.ProductHandler.DeleteInstance)
				})
			}

			if cfg.RegistrationHandler != nil {
				r.With(middleware.RequireRole(model.RoleConsumer)).
					Post("/registrations", cfg.RegistrationHandler.Register)
			}

			if cfg.ConsumerHandler != nil {
				r.Route("/consumers/me", func(r chi.Router) {
					r.Use(middleware.RequireRole(model.RoleConsumer))
					r.Get("/products", cfg.ConsumerHandler.ListProducts)
					r.Post("/products/verify", cfg.ConsumerHandler.VerifyProducts)
					r.Delete("/products/{serial}", cfg.ConsumerHandler.DeleteProduct)
					r.Get("/recyclers", cfg.ConsumerHandler.FindRecyclers)
					r.Get("/requests", cfg.ConsumerHandler.ListRequests)
				})
			}

			if cfg.RecyclerHandler != nil {
				r.Route("/recyclers/{recycler_id}", func(r chi.Router) {
					r.Get("/", cfg.RecyclerHandler.GetFacility)
					r.Get("/inventory", cfg.RecyclerHandler.ListInventory)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(model.RoleRecycler))
						r.Put("/", cfg.RecyclerHandler.PutFacility)
						r.Post("/inventory", cfg.RecyclerHandler.PutInventoryItem)
						r.Delete("/inventory/{item_id}", cfg.RecyclerHandler.DeleteInventoryItem)
						r.Get("/requests", cfg.RecyclerHandler.ListRequests)
					})
				})
			}

			if cfg.RecyclingHandler != nil {
				r.Route("/recycling-requests", func(r chi.Router) {
					r.With(middleware.RequireRole(model.RoleConsumer)).Post("/", cfg.RecyclingHandler.Open)
					r.Route("/{query_id}", func(r chi.Router) {
						r.Get("/", cfg.RecyclingHandler.Get)
						r.Delete("/", cfg.RecyclingHandler.Delete)

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireRole(model.RoleRecycler))
							r.Post("/accept", cfg.RecyclingHandler.Accept)
							r.Post("/reject", cfg.RecyclingHandler.Reject)
							r.Post("/recycle-status", cfg.RecyclingHandler.AdvanceRecycleStatus)
						})
					})
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.RequireRole())
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Post("/sweep", cfg.AdminHandler.RunSweep)
				})
			}
		})
	})

	return r
}
