package logging

import "context"

type contextKey string

const (
	// CallIDKey is the context key for call identifiers.
	CallIDKey contextKey = "call_id"

	// TenantIDKey is the context key for tenant identifiers.
	TenantIDKey contextKey = "tenant_id"

	// RequestIDKey is the context key for HTTP request IDs.
	RequestIDKey contextKey = "request_id"
)

var contextKeys = []contextKey{RequestIDKey, TenantIDKey, CallIDKey}

// WithCallID adds a call ID to the context.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, CallIDKey, callID)
}

// WithTenantID adds a tenant ID to the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// CallID returns the call ID from the context.
func CallID(ctx context.Context) string {
	v, _ := ctx.Value(CallIDKey).(string)
	return v
}

// TenantID returns the tenant ID from the context.
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(TenantIDKey).(string)
	return v
}

// RequestID returns the request ID from the context.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
