package rbac

import (
	"context"
	"net/http"
)

type roleKey struct{}

// WithRole stores the caller's role on the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext returns the caller's role, if any.
func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey{}).(string)
	return v, ok && v != ""
}

// Require rejects the request unless the caller's role holds the
// permission.
func Require(c *Checker, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || !c.Has(role, perm) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny rejects the request unless the caller's role holds at
// least one of the permissions.
func RequireAny(c *Checker, perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || !c.Any(role, perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
