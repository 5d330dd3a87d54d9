package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsExposeHeaders = "Retry-After, X-Request-ID"
)

// Origins is a parsed CORS allowlist. "*" admits any origin.
type Origins struct {
	any   bool
	exact map[string]struct{}
}

// ParseOrigins builds an allowlist from CORS_ALLOWED_ORIGINS entries.
// Trailing slashes are ignored so "https://desk.example/" matches the
// browser's "https://desk.example".
func ParseOrigins(values []string) Origins {
	o := Origins{exact: map[string]struct{}{}}
	for _, v := range values {
		v = strings.TrimRight(strings.TrimSpace(v), "/")
		switch v {
		case "":
		case "*":
			o.any = true
		default:
			o.exact[strings.ToLower(v)] = struct{}{}
		}
	}
	return o
}

// Allows reports whether a request from origin may read responses.
func (o Origins) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	if o.any {
		return true
	}
	_, ok := o.exact[strings.ToLower(origin)]
	return ok
}

// CORS echoes allowed origins back to the desk browser and answers
// preflights without reaching the handler.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := ParseOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			w.Header().Add("Vary", "Origin")
			allowed := origins.Allows(origin)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
