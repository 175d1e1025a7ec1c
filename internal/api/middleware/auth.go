package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/skyaware/skyaware/internal/api/models"
	"github.com/skyaware/skyaware/internal/auth"
)

type subjectKey struct{}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*auth.ServiceClaims, error)
}

// ServiceToken creates middleware that requires a valid service token in
// the Authorization header. The token subject is stored in the request
// context.
func ServiceToken(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, r, "missing or malformed bearer token")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "service token has expired")
				case errors.Is(err, auth.ErrMissingScope):
					writeUnauthorized(w, r, "service token lacks the ops scope")
				case errors.Is(err, auth.ErrNoSigningKey):
					writeUnauthorized(w, r, "service tokens are not configured")
				default:
					writeUnauthorized(w, r, "invalid service token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// writeUnauthorized writes a 401 problem. The response package imports
// middleware, so this cannot use it.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="ops"`)
	problem.Write(w)
}

// GetSubject returns the authenticated token subject, or "" when the
// request was not authenticated.
func GetSubject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}
