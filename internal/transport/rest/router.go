package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/visayasmed/access-management/internal"
	"github.com/visayasmed/access-management/internal/auth"
	"github.com/visayasmed/access-management/internal/entitlement"
	"github.com/visayasmed/access-management/internal/portal"
	"github.com/visayasmed/access-management/internal/transport/middleware"
	"github.com/visayasmed/access-management/internal/transport/swagger"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	cfg *internal.Config,
	authHandler *auth.Handler,
	entitlementHandler *entitlement.Handler,
	portalHandler *portal.Handler,
	guard *entitlement.Guard,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORSWithOrigins(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Auth routes
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/signup", authHandler.SignUp)
			sr.Post("/login", authHandler.Login)
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/logout", authHandler.Logout)
		})

		// Everything below requires a valid session
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Get("/me", authHandler.GetCurrentUser)
			pr.Get("/me/entitlements", entitlementHandler.GetMyEntitlements)
			pr.Get("/modules", entitlementHandler.GetCatalog)

			// Admin portal: user list and entitlement mutations
			pr.Group(func(ar chi.Router) {
				ar.Use(guard.RequireAdmin())
				ar.Get("/users", authHandler.ListUsers)
				ar.Route("/entitlements/{principalID}", func(er chi.Router) {
					er.Get("/", entitlementHandler.GetEntitlements)
					er.Put("/modules", entitlementHandler.SetModules)
					er.Put("/admin", entitlementHandler.SetAdmin)
				})
			})

			// Dashboard tabs, each gated on its module grant
			pr.Route("/portal", func(tr chi.Router) {
				for _, id := range entitlement.Catalog() {
					tr.With(guard.RequireModule(id)).Get("/"+string(id), portalHandler.Tab(id))
				}
			})
		})
	})
}
