package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type correlationKey struct{}

// CorrelationHeader is the HTTP header carrying the request's
// correlation id end-to-end.
const CorrelationHeader = "X-Request-Id"

// WithCorrelationID returns a context carrying id for later retrieval
// by CorrelationID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID retrieves the correlation id stamped on ctx, or "" if
// none was set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// CorrelationMiddleware ensures every request carries a correlation id:
// it reuses an inbound X-Request-Id header if present, otherwise mints
// one with uuid.New(), stamps it on the request context and echoes it
// back on the response header.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(CorrelationHeader, id)
		r = r.WithContext(WithCorrelationID(r.Context(), id))
		next.ServeHTTP(w, r)
	})
}
