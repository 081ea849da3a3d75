package dcontext

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequest places the request's id and useful fields on the context,
// returning a context carrying a logger annotated with them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, requestIDKey{}, id)

	return WithLogger(ctx, GetLoggerWithFields(ctx, map[any]any{
		"http.request.id":     id,
		"http.request.method": r.Method,
		"http.request.uri":    r.RequestURI,
	}))
}

// GetRequestID attempts to resolve the current request id, if possible. An
// error is returned if it is not available on the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
