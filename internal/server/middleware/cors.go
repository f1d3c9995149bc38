package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, HEAD, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-API-Key"
	corsMaxAge  = "86400"
)

// CORS lets dashboards on allowedOrigins read the API from a browser. An
// empty list or a "*" entry admits every origin. Preflights are answered
// here; ones from unlisted origins or asking for a write method get 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	anyOrigin := len(allowedOrigins) == 0
	listed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			anyOrigin = true
		}
		listed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (anyOrigin || listed[strings.ToLower(origin)])

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				if anyOrigin {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			method := r.Header.Get("Access-Control-Request-Method")
			if method != "" && (!allowed || !readOnly(method)) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Allow", corsMethods)
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", corsMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func readOnly(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return false
}
