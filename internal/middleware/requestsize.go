package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize caps JSON bodies. Email bodies are the largest payloads the API accepts.
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects bodies over maxBytes. A declared Content-Length is refused up front;
// chunked bodies are cut off by http.MaxBytesReader and surface as 413 from the JSON decoder.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
