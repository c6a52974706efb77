package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Kind names the entity class a mutation touched.
type Kind uint8

const (
	KindFlow Kind = iota
	KindStage
	KindStageBinding
)

// String returns the wire/log name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFlow:
		return "flow"
	case KindStage:
		return "stage"
	case KindStageBinding:
		return "stage_binding"
	default:
		return "unknown"
	}
}

// Op names the persistence operation.
type Op uint8

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

// String returns the log name of the operation.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation describes one committed write to a flow configuration entity.
// The persistence owner publishes it synchronously after commit, before
// acknowledging the write, so a later plan call never observes a stale
// cached plan for the mutated flow.
type Mutation struct {
	Kind Kind
	Op   Op

	// FlowID is set for flow and stage-binding mutations.
	FlowID uuid.UUID
	// StageID is set for stage and stage-binding mutations.
	StageID uuid.UUID
	// BindingID is set for stage-binding mutations.
	BindingID uuid.UUID
}

// Handler consumes mutations. Handlers run synchronously on the
// publisher's goroutine and must not block indefinitely.
type Handler func(ctx context.Context, m Mutation)

// Bus is a minimal synchronous fan-out of mutation events. It replaces
// an implicit global signal subscription with an explicit, typed
// dependency the persistence layer calls after commit.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future publications.
func (b *Bus) Subscribe(h Handler) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers m to every subscribed handler, in subscription order,
// on the calling goroutine.
func (b *Bus) Publish(ctx context.Context, m Mutation) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, m)
	}
}
