package middleware

import (
	"net/http"

	flowengine "github.com/kestrelauth/flowengine"
)

// RequestID assigns each request a correlation tag and writes the request
// identifier into the response under header. An empty header falls back
// to [flowengine.DefaultCorrelationHeader]. A tag already present on the
// context is kept, so the middleware is safe to stack.
func RequestID(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = flowengine.DefaultCorrelationHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, tag := flowengine.EnsureCorrelation(r.Context(), r.Host)
			w.Header().Set(header, tag.RequestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
