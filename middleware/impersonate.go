package middleware

import (
	"net/http"

	"github.com/kestrelauth/flowengine/session"
)

// Impersonate loads the caller's impersonation record, if any, into the
// request context. sessionID extracts the session identifier from the
// request; an empty identifier or an absent record passes the request
// through untouched. Store errors also pass through, the plan is then
// built for the real principal.
func Impersonate(store *session.Store, sessionID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || sessionID == nil {
				next.ServeHTTP(w, r)
				return
			}

			sid := sessionID(r)
			if sid == "" {
				next.ServeHTTP(w, r)
				return
			}

			// A degraded session backend must not block login flows, so
			// store errors degrade to planning for the real principal.
			rec, err := store.Get(r.Context(), sid)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := session.WithRecord(r.Context(), *rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
