package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"

	apierrors "sfcli/internal/errors"
)

// AdminAuth guards administrative endpoints with a pre-hashed API key.
// Clients send the key via X-API-Key or as a bearer token; the configured
// value is a bcrypt hash so the plaintext never lives in config files.
func AdminAuth(keyHash string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				logger.WarnContext(r.Context(), "admin endpoint accessed with no key configured",
					"path", r.URL.Path)
				render.Render(w, r, apierrors.ErrServiceUnavailable)
				return
			}

			key := extractKey(r)
			if key == "" {
				render.Render(w, r, apierrors.ErrUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				logger.WarnContext(r.Context(), "admin key rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				render.Render(w, r, apierrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
