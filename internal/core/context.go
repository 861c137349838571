package core

import (
	"context"

	"github.com/JonMunkholm/docimport/internal/schema"
)

type contextKey string

const (
	ctxKeyPrincipal contextKey = "import_principal"
	ctxKeyIPAddress contextKey = "import_ip"
	ctxKeyUserAgent contextKey = "import_ua"
)

// ContextWithPrincipal records who the import runs on behalf of. Computed
// field defaults receive it.
func ContextWithPrincipal(ctx context.Context, p schema.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the acting principal, or nil if none is set.
func PrincipalFromContext(ctx context.Context) *schema.Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(schema.Principal); ok {
		return &p
	}
	return nil
}

// ContextWithIPAddress adds the client IP address for run logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent for run logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
