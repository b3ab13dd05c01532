package chi

import (
	"context"
	"net/http"
	"strings"
)

type userIDKey struct{}

// anonymousUser is the user ID assigned when authentication is disabled.
const anonymousUser = "default"

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// UserIDFromContext returns the authenticated user ID.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// ContextWithUserID attaches a user ID; exported for handler tests.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// BearerAuthMiddleware validates Bearer tokens and resolves each key to its
// user ID. An empty key map disables authentication (development only) and
// every request runs as the anonymous user.
func BearerAuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	validKeys := make(map[string]string, len(apiKeys))
	for k, userID := range apiKeys {
		if k != "" && userID != "" {
			validKeys[k] = userID
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), anonymousUser)))
			})
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			userID, ok := validKeys[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}
