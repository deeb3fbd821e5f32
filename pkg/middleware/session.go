package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/validators"
)

type sessionKeyType struct{}

var sessionKey sessionKeyType

// Session runs every enabled validator against the request and, when one
// verifies a credential, stores the reconciled local user in the request
// context. Requests without a usable credential pass through untouched;
// establishing a session is opportunistic, never required.
func Session(registry *validators.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := registry.RunAll(r.Context(), r); user != nil {
				r = r.WithContext(context.WithValue(r.Context(), sessionKey, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the session user, or nil for an unauthenticated
// request.
func UserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(sessionKey).(*identity.User)
	return user
}

func denyJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireUser rejects unauthenticated requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			denyJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose session user is not an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			denyJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.IsAdmin {
			denyJSON(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
