// Package authz carries the caller identity set by the fronting proxy and
// guards operator-only routes.
package authz

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// GroupAdmin is the group allowed to report spider task outcomes.
const GroupAdmin = "admin"

type identityCtxKey struct{}

// Identity is the user making a request. UserID is zero when the user name
// is not numeric.
type Identity struct {
	User   string
	UserID int64
	Groups []string
}

// InGroup reports whether the identity belongs to group.
func (id Identity) InGroup(group string) bool {
	return slices.Contains(id.Groups, group)
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware extracts identity from the X-Remote-User and
// X-Remote-Group headers. A missing user becomes "anonymous".
// X-Remote-Group is comma-separated.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = "anonymous"
			}
			userID, err := strconv.ParseInt(user, 10, 64)
			if err != nil || userID < 0 {
				userID = 0
			}

			var groups []string
			if header := strings.TrimSpace(r.Header.Get("X-Remote-Group")); header != "" {
				for _, g := range strings.Split(header, ",") {
					if g = strings.TrimSpace(g); g != "" {
						groups = append(groups, g)
					}
				}
			}

			ctx := WithIdentity(r.Context(), Identity{User: user, UserID: userID, Groups: groups})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
