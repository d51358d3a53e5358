package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/and161185/toolkit-telemetry/internal/utils"
)

// VerifyHashMiddleware checks the HashSHA256 signature of the raw body.
// It must run before decompression since the signature covers the wire bytes.
// Requests without the header are let through. The body is read whole, so
// a size limit such as chi's RequestSize must be installed ahead of it.
func VerifyHashMiddleware(key string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(utils.HashHeader)
			if got == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			if !utils.ValidHash(body, key, got) {
				http.Error(w, "invalid hash", http.StatusBadRequest)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
