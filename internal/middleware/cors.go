package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/plantops/mv-backend/internal/config"
)

// NewCORSHandler builds the chi CORS middleware from the server's
// cross-origin configuration.
func NewCORSHandler(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
