package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

const defaultCORSMaxAge = 86400

// CORS handles preflight requests and CORS headers for the given origins.
// An empty list falls back to http://localhost:3000.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		MaxAge:           defaultCORSMaxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Last-Event-ID"},
	})
	return c.Handler
}
