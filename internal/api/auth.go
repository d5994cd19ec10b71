package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/contec/internal/auth"
)

// TrainerAuth admits requests whose bearer token is the trainer password.
func TrainerAuth(gate *auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			if err := gate.Check(header[len(prefix):]); err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
