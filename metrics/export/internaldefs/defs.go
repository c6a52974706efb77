package internaldefs

import (
	flowengine "github.com/kestrelauth/flowengine"
)

// CounterDef binds a counter's engine metric ID to its exported name.
type CounterDef struct {
	ID   flowengine.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency histogram's metric ID to its exported name.
type HistogramDef struct {
	ID   flowengine.MetricID
	Name string
	Help string
}

// CounterDefs is the single source of truth for exported counter names.
// Both exporters iterate this slice, so names never drift between them.
var CounterDefs = []CounterDef{
	{ID: flowengine.MetricPlanBuilt, Name: "flowengine_plan_built_total", Help: "Plans built from a full resolver pass."},
	{ID: flowengine.MetricPlanCacheHit, Name: "flowengine_plan_cache_hit_total", Help: "Plans served from cache."},
	{ID: flowengine.MetricPlanCacheMiss, Name: "flowengine_plan_cache_miss_total", Help: "Plan cache lookups that missed."},
	{ID: flowengine.MetricPlanCacheBypass, Name: "flowengine_plan_cache_bypass_total", Help: "Plans built with the cache deliberately bypassed."},
	{ID: flowengine.MetricPlanCacheFallback, Name: "flowengine_plan_cache_fallback_total", Help: "Plan requests that fell back to direct resolution because the cache backend was unavailable."},
	{ID: flowengine.MetricPolicyPass, Name: "flowengine_policy_pass_total", Help: "Policy evaluations that passed."},
	{ID: flowengine.MetricPolicyFail, Name: "flowengine_policy_fail_total", Help: "Policy evaluations that denied."},
	{ID: flowengine.MetricPolicyError, Name: "flowengine_policy_error_total", Help: "Policy evaluations that errored and were treated as denials."},
	{ID: flowengine.MetricPolicyDirectGrant, Name: "flowengine_policy_direct_grant_total", Help: "Policy bindings satisfied by a direct user or group grant."},
	{ID: flowengine.MetricBindingExcludedPolicy, Name: "flowengine_binding_excluded_policy_total", Help: "Stage bindings excluded from a plan by policy denial."},
	{ID: flowengine.MetricBindingExcludedRestriction, Name: "flowengine_binding_excluded_restriction_total", Help: "Stage bindings excluded by a user or group restriction."},
	{ID: flowengine.MetricBindingDanglingStage, Name: "flowengine_binding_dangling_stage_total", Help: "Stage bindings skipped because their stage no longer exists."},
	{ID: flowengine.MetricInvalidationFlow, Name: "flowengine_invalidation_flow_total", Help: "Cache invalidations triggered by flow mutations."},
	{ID: flowengine.MetricInvalidationStage, Name: "flowengine_invalidation_stage_total", Help: "Cache invalidations triggered by stage mutations."},
	{ID: flowengine.MetricInvalidationBinding, Name: "flowengine_invalidation_binding_total", Help: "Cache invalidations triggered by binding mutations."},
	{ID: flowengine.MetricInvalidationKeysDeleted, Name: "flowengine_invalidation_keys_deleted_total", Help: "Cached plan entries deleted by invalidation."},
	{ID: flowengine.MetricInvalidationFailure, Name: "flowengine_invalidation_failure_total", Help: "Invalidation attempts that failed against the cache backend."},
	{ID: flowengine.MetricImpersonatedPlan, Name: "flowengine_impersonated_plan_total", Help: "Plans built for an impersonated principal."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: flowengine.MetricPlanLatency, Name: "flowengine_plan_latency_seconds", Help: "Plan latency histogram, cache hits included."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus
// le-label form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OTel instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expose.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
