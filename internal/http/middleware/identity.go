package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmylchreest/vodarr/internal/models"
)

// Identity headers set by the upstream auth gateway.
const (
	UserIDHeader    = "X-User-ID"
	UserEmailHeader = "X-User-Email"
	UserRoleHeader  = "X-User-Role"
)

type principalKey struct{}

// Identity reads the caller identity forwarded by the auth gateway and stores
// it in the request context. Requests without a usable identity pass through
// untouched; handlers that need a caller reject them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := parsePrincipal(r.Header); ok {
			r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func parsePrincipal(h http.Header) (models.Principal, bool) {
	rawID := strings.TrimSpace(h.Get(UserIDHeader))
	if rawID == "" {
		return models.Principal{}, false
	}
	id, err := models.ParseULID(rawID)
	if err != nil || id.IsZero() {
		return models.Principal{}, false
	}

	role := models.RoleUser
	if raw := strings.TrimSpace(h.Get(UserRoleHeader)); raw != "" {
		switch models.Role(raw) {
		case models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin:
			role = models.Role(raw)
		default:
			return models.Principal{}, false
		}
	}

	return models.Principal{
		UserID: id,
		Email:  strings.TrimSpace(h.Get(UserEmailHeader)),
		Role:   role,
	}, true
}

// ContextWithPrincipal attaches the caller identity to ctx.
func ContextWithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller identity, if any.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}
