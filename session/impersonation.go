package session

import (
	"context"
	"time"

	"github.com/kestrelauth/flowengine/internal/policy"
)

// Record is the session-scoped impersonation state: who an administrator
// is currently acting as, and who they really are. It exists only while
// the impersonation lasts and is destroyed on session end or explicit
// revert.
//
// Authorization to start impersonating is checked by the caller before the
// record is created; nothing in this module re-checks permissions.
type Record struct {
	// Principal is the impersonated user as persisted, including its real
	// active/inactive state. Apply forces Active to true.
	Principal policy.Principal `json:"principal"`
	// OriginalID identifies the administrator the session belongs to.
	OriginalID string    `json:"original_id"`
	StartedAt  time.Time `json:"started_at"`
}

// Apply substitutes the acting principal on req. The impersonated
// principal is forcibly marked active regardless of its persisted state:
// once the record exists, impersonation always takes effect.
func (r Record) Apply(req *policy.Request) {
	if req == nil {
		return
	}
	req.Principal = r.Principal
	req.Principal.Active = true
	req.Impersonated = true
	req.OriginalID = r.OriginalID
}

type recordKey struct{}

// WithRecord attaches an impersonation record to ctx, typically done by
// [middleware.Impersonate] after loading it from the store. The engine
// applies any record found on the context before planning.
func WithRecord(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

// RecordFromContext extracts an impersonation record from ctx.
func RecordFromContext(ctx context.Context) (Record, bool) {
	if ctx == nil {
		return Record{}, false
	}
	rec, ok := ctx.Value(recordKey{}).(Record)
	return rec, ok
}
