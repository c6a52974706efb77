package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/correlation"
	"github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/model"
	"github.com/kestrelauth/flowengine/internal/policy"
	"github.com/kestrelauth/flowengine/internal/resolve"
)

// Deps is the dependency set wired once by the root engine.
type Deps struct {
	Cache    cache.Store
	Resolver resolve.Resolver
	Audit    func(ctx context.Context, event audit.Event)
	Metrics  *metrics.Metrics
	Log      zerolog.Logger

	CacheEnabled bool
	TTL          time.Duration
	KeyPrefix    string
	// FingerprintAttributes is the request attribute whitelist that feeds
	// the cache fingerprint.
	FingerprintAttributes []string
}

// Planner materializes execution plans, consulting the shared plan cache
// first and falling back to direct resolution when the cache store is
// unreachable.
type Planner struct {
	deps Deps
}

// New returns a planner with immutable dependency wiring.
func New(deps Deps) *Planner {
	return &Planner{deps: deps}
}

// Plan returns the ordered stage plan for flow and req, from cache when a
// fresh entry exists. Cache hits return the stored plan verbatim and skip
// all policy side effects, including per-policy audit events; a
// plan_cache_hit audit event records that evaluation was skipped.
func (p *Planner) Plan(ctx context.Context, flow *model.Flow, req *policy.Request) (*model.Plan, error) {
	return p.plan(ctx, flow, req, false)
}

// Replan forcibly bypasses the cache read and re-resolves. The fresh plan
// still lands in the cache, overwriting the previous entry.
func (p *Planner) Replan(ctx context.Context, flow *model.Flow, req *policy.Request) (*model.Plan, error) {
	return p.plan(ctx, flow, req, true)
}

func (p *Planner) plan(ctx context.Context, flow *model.Flow, req *policy.Request, force bool) (*model.Plan, error) {
	start := time.Now()

	fingerprint := Fingerprint(p.deps.KeyPrefix, flow.ID, req, p.deps.FingerprintAttributes)
	cacheUsable := p.deps.CacheEnabled && p.deps.Cache != nil

	if force {
		p.deps.Metrics.Inc(metrics.MetricPlanCacheBypass)
	}

	if cacheUsable && !force {
		cached, err := p.lookup(ctx, fingerprint)
		if err == nil && cached != nil {
			p.deps.Metrics.Inc(metrics.MetricPlanCacheHit)
			p.deps.Metrics.Observe(metrics.MetricPlanLatency, time.Since(start))
			p.emit(ctx, audit.Event{
				EventType:   audit.EventPlanCacheHit,
				FlowSlug:    flow.Slug,
				Fingerprint: fingerprint,
				UserID:      req.Principal.ID,
				Success:     true,
			})
			return cached, nil
		}
		if errors.Is(err, cache.ErrUnavailable) {
			// Degraded but correct: resolve directly and skip the store
			// for the rest of this call.
			cacheUsable = false
			p.deps.Metrics.Inc(metrics.MetricPlanCacheFallback)
			p.warn(ctx, flow, err, "plan cache unreachable, resolving directly")
		} else {
			p.deps.Metrics.Inc(metrics.MetricPlanCacheMiss)
		}
	}

	outcome, err := p.deps.Resolver.Resolve(ctx, flow, req)
	if err != nil {
		return nil, err
	}

	built := &model.Plan{
		FlowID:      flow.ID,
		FlowSlug:    flow.Slug,
		FlowVersion: flow.Version,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
		Stages:      outcome.Stages,
	}

	if cacheUsable && outcome.Cacheable {
		p.store(ctx, flow, built)
	}

	p.deps.Metrics.Inc(metrics.MetricPlanBuilt)
	if req.Impersonated {
		p.deps.Metrics.Inc(metrics.MetricImpersonatedPlan)
	}
	p.deps.Metrics.Observe(metrics.MetricPlanLatency, time.Since(start))

	p.emit(ctx, audit.Event{
		EventType:   audit.EventPlanBuilt,
		FlowSlug:    flow.Slug,
		Fingerprint: fingerprint,
		UserID:      req.Principal.ID,
		Success:     true,
		Metadata:    map[string]string{"stages": strconv.Itoa(len(built.Stages))},
	})

	return built, nil
}

func (p *Planner) lookup(ctx context.Context, fingerprint string) (*model.Plan, error) {
	data, err := p.deps.Cache.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	var cached model.Plan
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupt entry: treat as a miss and let the rebuild overwrite it.
		return nil, fmt.Errorf("%w: corrupt entry: %w", cache.ErrMiss, err)
	}
	return &cached, nil
}

func (p *Planner) store(ctx context.Context, flow *model.Flow, built *model.Plan) {
	data, err := json.Marshal(built)
	if err != nil {
		p.warn(ctx, flow, err, "plan not cacheable, serving uncached")
		return
	}
	if err := p.deps.Cache.Set(ctx, built.Fingerprint, data, p.deps.TTL); err != nil {
		p.deps.Metrics.Inc(metrics.MetricPlanCacheFallback)
		p.warn(ctx, flow, err, "plan cache write failed, serving uncached")
	}
}

func (p *Planner) emit(ctx context.Context, event audit.Event) {
	if p.deps.Audit != nil {
		p.deps.Audit(ctx, event)
	}
}

func (p *Planner) warn(ctx context.Context, flow *model.Flow, err error, msg string) {
	tag, _ := correlation.From(ctx)
	p.deps.Log.Warn().
		Str("request_id", tag.RequestID).
		Str("host", tag.Host).
		Str("flow", flow.Slug).
		Err(err).
		Msg(msg)
}
