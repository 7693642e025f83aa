package middleware

import (
	"net/http"

	"github.com/caseflow/caseflow/pkg/requestid"
)

// RequestID takes the request ID from the x-request-id header, generating a
// fresh one when the client did not send any, and injects it into the
// request's context.Context for consistent access across the application.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("x-request-id")
		if reqID == "" {
			reqID = requestid.Generate()
		}

		ctx := requestid.ToContext(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
