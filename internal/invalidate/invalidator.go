package invalidate

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/correlation"
	"github.com/kestrelauth/flowengine/internal/events"
	"github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/model"
	"github.com/kestrelauth/flowengine/internal/plan"
)

// Deps is the dependency set wired once by the root engine.
type Deps struct {
	Cache     cache.Store
	Provider  model.Provider
	Audit     func(ctx context.Context, event audit.Event)
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	KeyPrefix string
}

// Invalidator purges cached plans in reaction to flow configuration
// mutations. Purging is best-effort and idempotent: a failed or repeated
// purge only risks serving a stale plan until the entry's TTL expires.
type Invalidator struct {
	deps Deps
}

// New returns an invalidator with immutable dependency wiring.
func New(deps Deps) *Invalidator {
	return &Invalidator{deps: deps}
}

// HandleMutation satisfies the mutation bus handler signature.
//
// Flow and stage-binding mutations purge the owning flow's key prefix.
// Stage mutations reverse-look-up every binding referencing the stage and
// purge each referenced flow's prefix, each flow once.
func (i *Invalidator) HandleMutation(ctx context.Context, m events.Mutation) {
	switch m.Kind {
	case events.KindFlow:
		i.deps.Metrics.Inc(metrics.MetricInvalidationFlow)
		i.purgeFlow(ctx, m, m.FlowID)

	case events.KindStageBinding:
		i.deps.Metrics.Inc(metrics.MetricInvalidationBinding)
		i.purgeFlow(ctx, m, m.FlowID)

	case events.KindStage:
		i.deps.Metrics.Inc(metrics.MetricInvalidationStage)
		bindings, err := i.deps.Provider.ListBindingsForStage(ctx, m.StageID)
		if err != nil {
			i.failed(ctx, m, err)
			return
		}
		seen := make(map[uuid.UUID]struct{}, len(bindings))
		for _, binding := range bindings {
			if _, ok := seen[binding.FlowID]; ok {
				continue
			}
			seen[binding.FlowID] = struct{}{}
			i.purgeFlow(ctx, m, binding.FlowID)
		}
	}
}

// purgeFlow deletes every cache entry under the flow's fingerprint
// prefix. The deleted count feeds observability only; correctness never
// depends on it.
func (i *Invalidator) purgeFlow(ctx context.Context, m events.Mutation, flowID uuid.UUID) {
	if i.deps.Cache == nil {
		return
	}

	prefix := plan.Prefix(i.deps.KeyPrefix, flowID)

	keys, err := i.deps.Cache.KeysWithPrefix(ctx, prefix)
	if err != nil {
		i.failed(ctx, m, err)
		return
	}

	deleted, err := i.deps.Cache.DeleteMany(ctx, keys)
	if err != nil {
		i.failed(ctx, m, err)
		return
	}

	i.deps.Metrics.Add(metrics.MetricInvalidationKeysDeleted, uint64(deleted))

	tag, _ := correlation.From(ctx)
	i.deps.Log.Debug().
		Str("request_id", tag.RequestID).
		Str("host", tag.Host).
		Str("kind", m.Kind.String()).
		Str("op", m.Op.String()).
		Str("flow_id", flowID.String()).
		Int("deleted", deleted).
		Msg("invalidated flow plan cache")

	if i.deps.Audit != nil {
		i.deps.Audit(ctx, audit.Event{
			EventType: audit.EventFlowInvalidated,
			Success:   true,
			Metadata: map[string]string{
				"kind":    m.Kind.String(),
				"op":      m.Op.String(),
				"flow_id": flowID.String(),
				"deleted": strconv.Itoa(deleted),
			},
		})
	}
}

// failed records a delivery failure. Stale entries remain until TTL
// expiry; the mutation itself is never rolled back over this.
func (i *Invalidator) failed(ctx context.Context, m events.Mutation, err error) {
	i.deps.Metrics.Inc(metrics.MetricInvalidationFailure)

	tag, _ := correlation.From(ctx)
	i.deps.Log.Error().
		Str("request_id", tag.RequestID).
		Str("host", tag.Host).
		Str("kind", m.Kind.String()).
		Str("op", m.Op.String()).
		Err(err).
		Msg("plan cache invalidation failed, stale entries bounded by TTL")
}
