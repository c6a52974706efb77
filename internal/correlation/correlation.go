package correlation

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
)

// Tag identifies one in-flight request. It is created when the request
// enters the process and stamped onto every audit event and log line
// emitted while the request is alive.
type Tag struct {
	RequestID string
	Host      string
}

type tagKey struct{}

// With returns a context carrying tag.
func With(ctx context.Context, tag Tag) context.Context {
	return context.WithValue(ctx, tagKey{}, tag)
}

// From extracts the tag from ctx. A missing tag is not an error; callers
// emit empty request_id/host fields.
func From(ctx context.Context) (Tag, bool) {
	if ctx == nil {
		return Tag{}, false
	}
	tag, ok := ctx.Value(tagKey{}).(Tag)
	return tag, ok
}

// Ensure returns ctx unchanged when a tag is already attached, otherwise
// attaches a fresh one. Idempotent per request.
func Ensure(ctx context.Context, host string) (context.Context, Tag) {
	if tag, ok := From(ctx); ok {
		return ctx, tag
	}
	tag := Tag{RequestID: NewRequestID(), Host: host}
	return With(ctx, tag), tag
}

// NewRequestID returns a random 32-character lowercase hex identifier.
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
