package testutil

import (
	"net/http"
	"time"

	"solicitudes/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actorID int64, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actorID, role)
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock so deadline computations are
// deterministic in tests.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}
