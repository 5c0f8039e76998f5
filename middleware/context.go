package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// GetRequestIDFromContext retrieves the request ID assigned by chi's
// RequestID middleware, or "" outside a request.
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}
