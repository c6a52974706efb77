package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kestrelauth/flowengine/internal/audit"
	"github.com/kestrelauth/flowengine/internal/correlation"
	"github.com/kestrelauth/flowengine/internal/metrics"
	"github.com/kestrelauth/flowengine/internal/model"
	"github.com/kestrelauth/flowengine/internal/policy"
)

// Deps is the dependency set wired once by the root engine.
type Deps struct {
	Provider model.Provider
	// Audit receives evaluation events. The engine stamps the request
	// correlation tag before forwarding to the dispatcher. May be nil.
	Audit   func(ctx context.Context, event audit.Event)
	Metrics *metrics.Metrics
	Log     zerolog.Logger

	// FingerprintAttributes mirrors the planner's attribute whitelist.
	// A policy result that consulted a key outside it is treated as
	// non-cacheable: the cache fingerprint cannot distinguish requests
	// that differ only in that key.
	FingerprintAttributes []string
}

// Resolver walks a flow's stage bindings in deterministic order and
// decides, binding by binding, whether the acting principal gets the
// bound stage.
type Resolver struct {
	deps          Deps
	fingerprinted map[string]struct{}
}

// New returns a resolver with immutable dependency wiring.
func New(deps Deps) Resolver {
	fingerprinted := make(map[string]struct{}, len(deps.FingerprintAttributes))
	for _, key := range deps.FingerprintAttributes {
		fingerprinted[key] = struct{}{}
	}
	return Resolver{deps: deps, fingerprinted: fingerprinted}
}

// Outcome is the result of resolving one flow for one request.
type Outcome struct {
	Stages []model.StageRef

	// Cacheable is false when any consulted policy reported a
	// non-cacheable result; the planner then skips the cache write.
	Cacheable bool
}

// Resolve returns the ordered stages the request is entitled to.
//
// Bindings are visited in (order, created-at, id) ascending order.
// Disabled bindings are dropped before any policy work. A binding with a
// target restriction that does not match the principal is excluded. A
// binding without policies is included; otherwise every attached enabled
// policy binding must pass, evaluated in its own order with short-circuit
// on first failure. Policy evaluation has audit side effects, so a
// resolution is never restarted midway.
func (r Resolver) Resolve(ctx context.Context, flow *model.Flow, req *policy.Request) (Outcome, error) {
	bindings, err := r.deps.Provider.ListBindings(ctx, flow.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list bindings for flow %q: %w", flow.Slug, err)
	}
	model.SortBindings(bindings)

	out := Outcome{Cacheable: true}

	for _, binding := range bindings {
		if !binding.Enabled {
			continue
		}

		if !binding.Matches(req.Principal) {
			r.deps.Metrics.Inc(metrics.MetricBindingExcludedRestriction)
			continue
		}

		stage, err := r.deps.Provider.GetStage(ctx, binding.StageID)
		if errors.Is(err, model.ErrStageNotFound) {
			r.skipDangling(ctx, flow, binding)
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("load stage %s: %w", binding.StageID, err)
		}

		passed, cacheable := r.passes(ctx, flow, binding, req)
		out.Cacheable = out.Cacheable && cacheable
		if !passed {
			r.deps.Metrics.Inc(metrics.MetricBindingExcludedPolicy)
			continue
		}

		out.Stages = append(out.Stages, model.StageRef{
			StageID:   stage.ID,
			BindingID: binding.ID,
			Name:      stage.Name,
			Component: stage.Component,
			Order:     binding.Order,
			Timeout:   binding.Timeout,
		})
	}

	return out, nil
}

// passes evaluates the binding's policy set. Zero attached policies means
// implicit inclusion.
func (r Resolver) passes(ctx context.Context, flow *model.Flow, binding model.StageBinding, req *policy.Request) (bool, bool) {
	policyBindings := make([]model.PolicyBinding, len(binding.PolicyBindings))
	copy(policyBindings, binding.PolicyBindings)
	model.SortPolicyBindings(policyBindings)

	cacheable := true

	for _, pb := range policyBindings {
		if !pb.Enabled {
			continue
		}

		if pb.Direct() {
			// Direct grants decide without an evaluator call.
			if r.directMatches(pb, req.Principal) {
				r.deps.Metrics.Inc(metrics.MetricPolicyDirectGrant)
				continue
			}
			return false, cacheable
		}

		result, evalErr := policy.Evaluate(ctx, pb.Policy, req)
		if result.Cacheable && !r.fingerprintCovers(result.AttributesRead) {
			result.Cacheable = false
		}
		cacheable = cacheable && result.Cacheable
		r.record(ctx, flow, binding, pb, result, evalErr)
		if !result.Passed {
			return false, cacheable
		}
	}

	return true, cacheable
}

// fingerprintCovers reports whether every attribute key the policy read
// is part of the cache fingerprint.
func (r Resolver) fingerprintCovers(read []string) bool {
	for _, key := range read {
		if _, ok := r.fingerprinted[key]; !ok {
			return false
		}
	}
	return true
}

func (r Resolver) directMatches(pb model.PolicyBinding, p policy.Principal) bool {
	if pb.UserID != "" && pb.UserID == p.ID {
		return true
	}
	if pb.Group != "" && p.InGroup(pb.Group) {
		return true
	}
	return false
}

func (r Resolver) record(ctx context.Context, flow *model.Flow, binding model.StageBinding, pb model.PolicyBinding, result policy.Result, evalErr error) {
	name := ""
	logged := false
	if pb.Policy != nil {
		name = pb.Policy.Name()
		logged = pb.Policy.ExecutionLogging()
	}

	switch {
	case evalErr != nil:
		r.deps.Metrics.Inc(metrics.MetricPolicyError)
	case result.Passed:
		r.deps.Metrics.Inc(metrics.MetricPolicyPass)
	default:
		r.deps.Metrics.Inc(metrics.MetricPolicyFail)
	}

	if evalErr != nil {
		tag, _ := correlation.From(ctx)
		r.deps.Log.Warn().
			Str("request_id", tag.RequestID).
			Str("host", tag.Host).
			Str("flow", flow.Slug).
			Str("policy", name).
			Err(evalErr).
			Msg("policy evaluation degraded to fail-closed")
	}

	// Internal failures always reach the audit trail; regular outcomes
	// only when the policy opted in via execution logging.
	if r.deps.Audit == nil || (evalErr == nil && !logged) {
		return
	}

	eventType := audit.EventPolicyFail
	if evalErr != nil {
		eventType = audit.EventPolicyError
	} else if result.Passed {
		eventType = audit.EventPolicyPass
	}

	event := audit.Event{
		EventType:  eventType,
		FlowSlug:   flow.Slug,
		PolicyName: name,
		BindingID:  binding.ID.String(),
		Success:    result.Passed,
		Metadata:   map[string]string{"reason": result.Reason},
	}
	if evalErr != nil {
		event.Error = evalErr.Error()
	}
	r.deps.Audit(ctx, event)
}

func (r Resolver) skipDangling(ctx context.Context, flow *model.Flow, binding model.StageBinding) {
	r.deps.Metrics.Inc(metrics.MetricBindingDanglingStage)

	tag, _ := correlation.From(ctx)
	r.deps.Log.Warn().
		Str("request_id", tag.RequestID).
		Str("host", tag.Host).
		Str("flow", flow.Slug).
		Str("binding", binding.ID.String()).
		Str("stage", binding.StageID.String()).
		Msg("stage binding references missing stage, skipping")

	if r.deps.Audit != nil {
		r.deps.Audit(ctx, audit.Event{
			EventType: audit.EventBindingDangling,
			FlowSlug:  flow.Slug,
			BindingID: binding.ID.String(),
			Success:   false,
			Metadata:  map[string]string{"stage_id": binding.StageID.String()},
		})
	}
}
