package shared

import (
	"context"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
)

// RequirePrincipal returns the authenticated principal or a 401 error.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, httpx.Unauthorized("Authentication required")
	}
	return p, nil
}

// AuthorizeUser checks that the request acts on the principal's own records.
func AuthorizeUser(ctx context.Context, userID int64) (Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return Principal{}, err
	}
	if userID != p.UserID {
		return Principal{}, httpx.Forbidden("You can only access your own records")
	}
	return p, nil
}
