package middleware

import (
	"crypto/subtle"
	"net/http"

	"mercator-hq/ganymede/pkg/config"
)

// Auth enforces API key authentication against the configured key list.
// The key is read from the configured header (X-API-Key by default) and
// compared in constant time. When authentication is disabled the
// middleware passes every request through untouched.
//
// The server applies Auth to the /v1 API routes only; health probes and
// the metrics endpoint stay open for orchestrators and scrapers.
func Auth(cfg *config.AuthenticationConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil || !cfg.Enabled {
			return next
		}
		header := cfg.HeaderName
		if header == "" {
			header = "X-API-Key"
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(header)
			if key == "" {
				writeError(w, r, http.StatusUnauthorized,
					"UNAUTHENTICATED", "missing API key")
				return
			}
			if !keyAccepted(key, cfg.APIKeys) {
				writeError(w, r, http.StatusUnauthorized,
					"UNAUTHENTICATED", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyAccepted checks key against every configured key so the comparison
// time does not reveal which entry matched.
func keyAccepted(key string, accepted []string) bool {
	ok := false
	for _, candidate := range accepted {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			ok = true
		}
	}
	return ok
}
