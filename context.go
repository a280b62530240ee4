package authcore

import "context"

type sourceAddressContextKey struct{}

// WithSourceAddress attaches the caller's network address to ctx. The engine
// includes it in audit events and lockout notifications.
func WithSourceAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddressContextKey{}, addr)
}

func sourceAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	addr, _ := ctx.Value(sourceAddressContextKey{}).(string)
	return addr
}
