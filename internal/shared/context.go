package shared

import "context"

// Principal is the authenticated shop user a request acts for.
type Principal struct {
	UserID   int64  `json:"id"`
	Email    string `json:"email"`
	ShopName string `json:"shop_name"`
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.UserID > 0
}
