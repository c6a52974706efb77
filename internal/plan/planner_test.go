package plan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/cache"
	"github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/model"
	"github.com/kestrelauth/flowengine/internal/policy"
	"github.com/kestrelauth/flowengine/internal/resolve"
)

type planProvider struct {
	flow     model.Flow
	stages   map[uuid.UUID]model.Stage
	bindings []model.StageBinding
	lists    int
}

func (p *planProvider) GetFlowBySlug(context.Context, string) (*model.Flow, error) {
	f := p.flow
	return &f, nil
}

func (p *planProvider) GetFlow(context.Context, uuid.UUID) (*model.Flow, error) {
	f := p.flow
	return &f, nil
}

func (p *planProvider) GetStage(_ context.Context, id uuid.UUID) (*model.Stage, error) {
	s, ok := p.stages[id]
	if !ok {
		return nil, model.ErrStageNotFound
	}
	return &s, nil
}

func (p *planProvider) ListBindings(context.Context, uuid.UUID) ([]model.StageBinding, error) {
	p.lists++
	out := make([]model.StageBinding, len(p.bindings))
	copy(out, p.bindings)
	return out, nil
}

func (p *planProvider) ListBindingsForStage(context.Context, uuid.UUID) ([]model.StageBinding, error) {
	return nil, nil
}

type volatilePolicy struct {
	policy.Base
	passed bool
}

func (v *volatilePolicy) Kind() string { return "volatile" }

func (v *volatilePolicy) Evaluate(context.Context, *policy.Request) (policy.Result, error) {
	return policy.Result{Passed: v.passed, Cacheable: false}, nil
}

type plannerHarness struct {
	provider *planProvider
	store    *cache.MemoryStore
	metrics  *metrics.Metrics
	events   []audit.Event
	planner  *Planner
}

func newPlannerHarness(t *testing.T) *plannerHarness {
	t.Helper()

	stageID := uuid.New()
	h := &plannerHarness{
		provider: &planProvider{
			flow:   model.Flow{ID: uuid.New(), Slug: "default-authentication", Version: 3},
			stages: map[uuid.UUID]model.Stage{stageID: {ID: stageID, Name: "identify", Component: model.ComponentIdentification}},
		},
		store:   cache.NewMemoryStore(),
		metrics: metrics.New(metrics.Config{Enabled: true, EnableLatency: true}),
	}
	h.provider.bindings = []model.StageBinding{{
		ID:        uuid.New(),
		FlowID:    h.provider.flow.ID,
		StageID:   stageID,
		Order:     10,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}}

	capture := func(_ context.Context, event audit.Event) {
		h.events = append(h.events, event)
	}
	resolver := resolve.New(resolve.Deps{
		Provider:              h.provider,
		Audit:                 capture,
		Metrics:               h.metrics,
		Log:                   zerolog.Nop(),
		FingerprintAttributes: []string{"is_not_locked"},
	})
	h.planner = New(Deps{
		Cache:                 h.store,
		Resolver:              resolver,
		Audit:                 capture,
		Metrics:               h.metrics,
		Log:                   zerolog.Nop(),
		CacheEnabled:          true,
		TTL:                   time.Minute,
		KeyPrefix:             "fp",
		FingerprintAttributes: []string{"is_not_locked"},
	})
	return h
}

func (h *plannerHarness) request() *policy.Request {
	return &policy.Request{
		Principal:  policy.Principal{ID: "user-1", Username: "alice", Groups: []string{"staff"}, Active: true},
		Attributes: map[string]any{"is_not_locked": true},
	}
}

func (h *plannerHarness) eventCount(eventType string) int {
	n := 0
	for _, e := range h.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func TestPlanCachesAndServesHit(t *testing.T) {
	h := newPlannerHarness(t)
	ctx := context.Background()

	first, err := h.planner.Plan(ctx, &h.provider.flow, h.request())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(first.Stages) != 1 {
		t.Fatalf("expected one stage, got %d", len(first.Stages))
	}
	if h.metrics.Value(metrics.MetricPlanCacheMiss) != 1 {
		t.Fatal("first call should miss the cache")
	}

	second, err := h.planner.Plan(ctx, &h.provider.flow, h.request())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if h.metrics.Value(metrics.MetricPlanCacheHit) != 1 {
		t.Fatal("second call should hit the cache")
	}
	if h.provider.lists != 1 {
		t.Fatalf("cache hit must not touch the provider, saw %d lists", h.provider.lists)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatal("fingerprints must be deterministic")
	}
	if h.eventCount(audit.EventPlanCacheHit) != 1 {
		t.Fatal("expected a plan_cache_hit audit event")
	}
}

func TestReplanBypassesCacheRead(t *testing.T) {
	h := newPlannerHarness(t)
	ctx := context.Background()

	if _, err := h.planner.Plan(ctx, &h.provider.flow, h.request()); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := h.planner.Replan(ctx, &h.provider.flow, h.request()); err != nil {
		t.Fatalf("Replan failed: %v", err)
	}

	if h.metrics.Value(metrics.MetricPlanCacheBypass) != 1 {
		t.Fatal("expected bypass metric")
	}
	if h.metrics.Value(metrics.MetricPlanCacheHit) != 0 {
		t.Fatal("replan must not read the cache")
	}
	if h.provider.lists != 2 {
		t.Fatalf("replan must re-resolve, saw %d lists", h.provider.lists)
	}
	// The rebuilt plan overwrote the cached entry.
	if h.store.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", h.store.Len())
	}
}

func TestPlanSkipsCacheWriteForNonCacheableOutcome(t *testing.T) {
	h := newPlannerHarness(t)
	h.provider.bindings[0].PolicyBindings = []model.PolicyBinding{{
		ID:      uuid.New(),
		Enabled: true,
		Policy:  &volatilePolicy{passed: true},
	}}

	if _, err := h.planner.Plan(context.Background(), &h.provider.flow, h.request()); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if h.store.Len() != 0 {
		t.Fatal("non-cacheable outcome must not be written to the cache")
	}
}

func TestPlanFallsBackWhenCacheUnavailable(t *testing.T) {
	h := newPlannerHarness(t)
	h.planner.deps.Cache = unavailableStore{}

	built, err := h.planner.Plan(context.Background(), &h.provider.flow, h.request())
	if err != nil {
		t.Fatalf("Plan must survive cache outage: %v", err)
	}
	if len(built.Stages) != 1 {
		t.Fatalf("expected resolved plan, got %d stages", len(built.Stages))
	}
	if h.metrics.Value(metrics.MetricPlanCacheFallback) == 0 {
		t.Fatal("expected fallback metric")
	}
}

func TestPlanTreatsCorruptEntryAsMiss(t *testing.T) {
	h := newPlannerHarness(t)
	ctx := context.Background()

	req := h.request()
	fingerprint := Fingerprint("fp", h.provider.flow.ID, req, []string{"is_not_locked"})
	if err := h.store.Set(ctx, fingerprint, []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	built, err := h.planner.Plan(ctx, &h.provider.flow, req)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(built.Stages) != 1 {
		t.Fatal("corrupt cache entry must trigger a rebuild")
	}
	if h.metrics.Value(metrics.MetricPlanCacheHit) != 0 {
		t.Fatal("corrupt entry must not count as a hit")
	}
}

func TestPlanRecordsFlowVersionAndMetadata(t *testing.T) {
	h := newPlannerHarness(t)

	built, err := h.planner.Plan(context.Background(), &h.provider.flow, h.request())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if built.FlowVersion != 3 {
		t.Fatalf("expected flow version 3, got %d", built.FlowVersion)
	}
	if built.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be stamped")
	}
	if h.eventCount(audit.EventPlanBuilt) != 1 {
		t.Fatal("expected a plan_built audit event")
	}
}

func TestPlanCountsImpersonatedPlans(t *testing.T) {
	h := newPlannerHarness(t)

	req := h.request()
	req.Impersonated = true
	req.OriginalID = "admin"

	if _, err := h.planner.Plan(context.Background(), &h.provider.flow, req); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if h.metrics.Value(metrics.MetricImpersonatedPlan) != 1 {
		t.Fatal("expected impersonated plan metric")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	flowID := uuid.New()
	attrs := []string{"is_not_locked", "has_mfa_device"}

	base := &policy.Request{
		Principal:  policy.Principal{ID: "user-1", Groups: []string{"b", "a"}},
		Attributes: map[string]any{"is_not_locked": true, "ignored": "x"},
	}

	same := &policy.Request{
		Principal:  policy.Principal{ID: "user-1", Groups: []string{"a", "b"}},
		Attributes: map[string]any{"is_not_locked": true, "ignored": "y"},
	}

	if Fingerprint("fp", flowID, base, attrs) != Fingerprint("fp", flowID, same, attrs) {
		t.Fatal("group order and unlisted attributes must not affect the fingerprint")
	}

	otherUser := &policy.Request{Principal: policy.Principal{ID: "user-2", Groups: []string{"a", "b"}}}
	if Fingerprint("fp", flowID, base, attrs) == Fingerprint("fp", flowID, otherUser, attrs) {
		t.Fatal("different principals must not share a fingerprint")
	}

	impersonated := *base
	impersonated.Impersonated = true
	if Fingerprint("fp", flowID, base, attrs) == Fingerprint("fp", flowID, &impersonated, attrs) {
		t.Fatal("impersonation must change the fingerprint")
	}

	attrFlip := &policy.Request{
		Principal:  base.Principal,
		Attributes: map[string]any{"is_not_locked": false, "ignored": "x"},
	}
	if Fingerprint("fp", flowID, base, attrs) == Fingerprint("fp", flowID, attrFlip, attrs) {
		t.Fatal("whitelisted attribute changes must change the fingerprint")
	}

	typeFlip := &policy.Request{
		Principal:  base.Principal,
		Attributes: map[string]any{"is_not_locked": "true", "ignored": "x"},
	}
	if Fingerprint("fp", flowID, base, attrs) == Fingerprint("fp", flowID, typeFlip, attrs) {
		t.Fatal(`bool true and string "true" must not share a fingerprint`)
	}

	if !strings.HasPrefix(Fingerprint("fp", flowID, base, attrs), Prefix("fp", flowID)+"#") {
		t.Fatal("fingerprint must carry the flow prefix")
	}
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) ([]byte, error) {
	return nil, cache.ErrUnavailable
}

func (unavailableStore) Set(context.Context, string, []byte, time.Duration) error {
	return cache.ErrUnavailable
}

func (unavailableStore) KeysWithPrefix(context.Context, string) ([]string, error) {
	return nil, cache.ErrUnavailable
}

func (unavailableStore) DeleteMany(context.Context, []string) (int, error) {
	return 0, cache.ErrUnavailable
}

func (unavailableStore) Ping(context.Context) error { return cache.ErrUnavailable }
