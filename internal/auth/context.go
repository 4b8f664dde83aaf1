package auth

import "context"

type contextKey struct{}

type AuthContext struct {
	UserID   int64
	Username string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// Username returns the authenticated username, or "system" when the
// request carries none.
func Username(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.Username == "" {
		return "system"
	}
	return ac.Username
}
