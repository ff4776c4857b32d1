package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/imagegen-gateway/app"
	"github.com/upb/imagegen-gateway/handlers"
	"github.com/upb/imagegen-gateway/middleware"
	"github.com/upb/imagegen-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var providerNames func() []string
	if deps.Dispatcher != nil {
		providerNames = deps.Dispatcher.Providers
	}

	health := handlers.NewHealthHandler(deps.Store, providerNames, deps.Logger)
	generation := handlers.NewGenerationHandler(deps.Dispatcher, deps.Editing, deps.Config.Server.MaxUploadBytes, deps.Logger)
	providers := handlers.NewProviderHandler(deps.Dispatcher, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.StatusHandler(deps.Config.Environment, providerNames))

		r.Post("/generate", generation.HandleGenerate)
		r.Post("/edits/{feature}", generation.HandleEdit)
		r.Post("/describe", generation.HandleDescribe)
		r.Post("/suggestions/{kind}", generation.HandleSuggestions)

		// Provider administration
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providers.HandleList)
			r.Post("/{name}/reset", providers.HandleReset)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
