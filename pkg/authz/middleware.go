package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RequireGroup rejects requests whose identity is not in group with 403.
// It must run after IdentityMiddleware.
func RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if !id.InGroup(group) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "forbidden",
					"message": fmt.Sprintf("user %q is not in group %s", id.User, group),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
