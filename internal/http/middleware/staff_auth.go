package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/internal/staff"
)

// StaffClaims is the token the desk login issues.
type StaffClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

// StaffJWT enforces an HMAC-signed staff token and stores the caller on the
// request context. Browsers cannot set headers on a websocket upgrade, so a
// ?token= query parameter is accepted as well.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httpjson.Error(w, http.StatusUnauthorized, "staff auth disabled")
				return
			}
			tokenString := bearerToken(r)
			if tokenString == "" {
				httpjson.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims := StaffClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
				httpjson.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			caller := staff.Caller{
				ID:   claims.Subject,
				Name: strings.TrimSpace(claims.Name),
				Role: staff.ParseRole(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(staff.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireSupervisor rejects callers without the supervisor role. It must run
// after StaffJWT.
func RequireSupervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := staff.FromContext(r.Context())
		if !ok {
			httpjson.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !caller.IsSupervisor() {
			httpjson.Error(w, http.StatusForbidden, "supervisor role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// SignStaffToken issues a token for caller. Used by radctl and tests.
func SignStaffToken(secret string, caller staff.Caller, expiresAt time.Time) (string, error) {
	claims := StaffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name: caller.Name,
		Role: string(caller.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
