// Package auth authenticates edge agents posting to the ingestion API.
// Agents present a static key in the X-API-KEY header; keys are compared in
// constant time.
package auth

import (
	"crypto/subtle"
	"net/http"
)

const headerAPIKey = "X-API-KEY"

// RequireAPIKey is chi middleware that validates the agent API key. A
// missing key is 401; a key not in the configured set is 403.
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(headerAPIKey)
			if presented == "" {
				writeAuthError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !keyAllowed(presented, keys) {
				writeAuthError(w, http.StatusForbidden, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyAllowed(presented string, keys []string) bool {
	allowed := false
	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
			allowed = true
		}
	}
	return allowed
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
