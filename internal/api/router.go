package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// NewRouter builds the Chi router with all routes configured. The API is
// public: everything is rate-limited per IP, and CORS is open to the
// dashboard origins.
func NewRouter(handlers *Handlers, allowedOrigins []string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(120, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))

	r.Get("/api/v1/weather", handlers.GetWeather)
	r.Get("/api/v1/search", handlers.SearchCities)
	r.Get("/api/v1/geocode", handlers.ReverseGeocode)
	r.Get("/api/v1/theme", handlers.GetTheme)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", handlers.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetSession)
			r.Delete("/", handlers.DeleteSession)
			r.Post("/cities", handlers.AddSessionCity)
			r.Delete("/cities/{index}", handlers.RemoveSessionCity)
			r.Put("/active", handlers.SelectSessionCity)
			r.Put("/units", handlers.SetSessionUnits)
			r.Post("/prefetch", handlers.PrefetchSession)
			r.Get("/weather", handlers.SessionWeather)
			r.Get("/search", handlers.SessionSearch)
		})
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
