package flowengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	internalaudit "github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/correlation"
	"github.com/kestrelauth/flowengine/internal/events"
	"github.com/kestrelauth/flowengine/internal/invalidate"
	internalmetrics "github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/plan"
	"github.com/kestrelauth/flowengine/session"
	"github.com/kestrelauth/flowengine/token"
)

// Audit event type names emitted by the engine.
const (
	EventPlanBuilt          = internalaudit.EventPlanBuilt
	EventPlanCacheHit       = internalaudit.EventPlanCacheHit
	EventPolicyPass         = internalaudit.EventPolicyPass
	EventPolicyFail         = internalaudit.EventPolicyFail
	EventPolicyError        = internalaudit.EventPolicyError
	EventBindingDangling    = internalaudit.EventBindingDangling
	EventFlowInvalidated    = internalaudit.EventFlowInvalidated
	EventImpersonationApply = internalaudit.EventImpersonationApply
)

// Engine is the flow execution engine. Build one through [Builder]; all
// methods are safe for concurrent use afterwards.
type Engine struct {
	config   Config
	provider FlowProvider
	cache    cache.Store
	bus      *events.Bus

	planner     *plan.Planner
	invalidator *invalidate.Invalidator

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics
	tokens  *token.Manager
	log     zerolog.Logger
}

// Plan returns the ordered stage plan for the named flow and request.
//
// Any impersonation record attached to ctx (see [session.WithRecord]) is
// applied first, substituting the acting principal. The result comes from
// the plan cache when a fresh entry exists; cached plans skip policy
// evaluation and its audit side effects entirely.
func (e *Engine) Plan(ctx context.Context, flowSlug string, req *Request) (*Plan, error) {
	flow, err := e.prepare(ctx, flowSlug, req)
	if err != nil {
		return nil, err
	}
	return e.planner.Plan(ctx, flow, req)
}

// Replan forcibly bypasses the cache read and re-resolves the flow.
// Callers use it after a stage mutated request facts that could change
// later policy outcomes.
func (e *Engine) Replan(ctx context.Context, flowSlug string, req *Request) (*Plan, error) {
	flow, err := e.prepare(ctx, flowSlug, req)
	if err != nil {
		return nil, err
	}
	return e.planner.Replan(ctx, flow, req)
}

func (e *Engine) prepare(ctx context.Context, flowSlug string, req *Request) (*Flow, error) {
	if e == nil || e.planner == nil {
		return nil, ErrEngineNotReady
	}
	if req == nil {
		return nil, ErrNilRequest
	}

	flow, err := e.provider.GetFlowBySlug(ctx, flowSlug)
	if err != nil {
		return nil, fmt.Errorf("flow %q: %w", flowSlug, err)
	}

	e.ApplyImpersonation(ctx, req)

	return flow, nil
}

// ApplyImpersonation substitutes the acting principal on req when ctx
// carries an impersonation record. The impersonated principal is forced
// active regardless of its persisted state; no permission check happens
// here — authorization to impersonate was checked before the record was
// created. Returns whether a substitution happened.
func (e *Engine) ApplyImpersonation(ctx context.Context, req *Request) bool {
	rec, ok := session.RecordFromContext(ctx)
	if !ok || req == nil || req.Impersonated {
		return false
	}

	original := req.Principal.ID
	rec.Apply(req)

	e.emitAudit(ctx, AuditEvent{
		EventType: EventImpersonationApply,
		UserID:    rec.Principal.ID,
		Success:   true,
		Metadata: map[string]string{
			"original_user": rec.OriginalID,
			"session_user":  original,
		},
	})
	return true
}

// NotifyMutation publishes a flow configuration mutation to the engine's
// invalidator. Persistence layers call it synchronously after commit,
// before acknowledging the write.
func (e *Engine) NotifyMutation(ctx context.Context, m Mutation) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(ctx, m)
}

// ContinuationToken signs a token resuming the given plan at stageIndex.
func (e *Engine) ContinuationToken(built *Plan, stageIndex int) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.tokens == nil {
		return "", ErrTokensDisabled
	}
	if built == nil || stageIndex < 0 || stageIndex > len(built.Stages) {
		return "", fmt.Errorf("%w: stage index out of range", token.ErrTokenInvalid)
	}
	return e.tokens.Issue(built.FlowSlug, built.Fingerprint, "", stageIndex)
}

// ParseContinuationToken verifies a continuation token and returns its
// claims. The caller must compare the claimed fingerprint against the
// current plan and replan on mismatch.
func (e *Engine) ParseContinuationToken(tokenStr string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.tokens == nil {
		return nil, ErrTokensDisabled
	}
	return e.tokens.Parse(tokenStr)
}

// Health pings the plan cache store.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || e.cache == nil {
		return ErrEngineNotReady
	}
	return e.cache.Ping(ctx)
}

// CacheEntries counts the cached plans currently stored for a flow. The
// count is advisory: entries may expire or be purged between the scan and
// the caller acting on the result.
func (e *Engine) CacheEntries(ctx context.Context, flowID uuid.UUID) (int, error) {
	if e == nil || e.cache == nil {
		return 0, ErrEngineNotReady
	}
	keys, err := e.cache.KeysWithPrefix(ctx, plan.Prefix(e.config.Cache.KeyPrefix, flowID))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// MetricsSnapshot returns a deep copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.TakeSnapshot()
}

// AuditDropped reports audit events shed under dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// emitAudit stamps the correlation tag and timestamp onto event and hands
// it to the dispatcher. Shared by the planner, resolver, and invalidator.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if tag, ok := correlation.From(ctx); ok {
		event.RequestID = tag.RequestID
		event.Host = tag.Host
	}
	e.audit.Emit(ctx, event)
}
