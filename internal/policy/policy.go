package policy

import "context"

// Reason strings reported in evaluation results.
const (
	ReasonPolicyError       = "policy_error"
	ReasonExpressionDenied  = "expression_denied"
	ReasonAttributeMismatch = "attribute_mismatch"
	ReasonNotInGroup        = "not_in_group"
	ReasonReputationBelow   = "reputation_below_threshold"
	ReasonDirectGrant       = "direct_grant"
	ReasonDirectMismatch    = "direct_binding_mismatch"
)

// Principal is the acting user an evaluation runs for. Active is forced to
// true while an impersonation record is applied, regardless of the
// persisted state of the impersonated account.
type Principal struct {
	ID       string
	Username string
	Groups   []string
	Active   bool
}

// InGroup reports whether the principal belongs to the named group.
func (p Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Request is the ephemeral per-request evaluation context. It is built
// fresh for every planning call, passed by reference through evaluator
// calls, and never persisted. The request correlation tag travels on the
// context.Context alongside it, not here.
//
// Attributes carries prior-stage results and any caller-supplied facts
// policies may test. Policies must treat the request as read-only.
type Request struct {
	Principal Principal
	ClientIP  string

	// Impersonated is set when the acting principal was substituted from
	// an impersonation record. OriginalID then names the administrator
	// the session really belongs to.
	Impersonated bool
	OriginalID   string

	Attributes map[string]any
}

// Result is the outcome of evaluating one policy.
type Result struct {
	Passed bool
	Reason string

	// Cacheable marks the result as safe to bake into a cached plan.
	// Results degraded by internal errors are never cacheable.
	Cacheable bool

	// AttributesRead lists the request attribute keys the policy
	// consulted. The resolver downgrades Cacheable when any of them is
	// missing from the fingerprint whitelist, since the cache key could
	// not tell two requests with different values apart.
	AttributesRead []string
}

// Policy is the capability every concrete variant implements. Variants are
// interchangeable: the evaluator dispatches through this interface only,
// so new variants plug in without evaluator changes.
type Policy interface {
	// Name is the administrator-assigned policy name, used in audit events.
	Name() string
	// Kind identifies the variant, e.g. "expression" or "reputation".
	Kind() string
	// ExecutionLogging reports whether pass/fail outcomes of this policy
	// must be recorded on the audit trail.
	ExecutionLogging() bool
	// Evaluate runs the predicate against req. Implementations must not
	// mutate req. A returned error is an internal failure, not a deny.
	Evaluate(ctx context.Context, req *Request) (Result, error)
}

// Base carries the fields shared by every policy variant.
type Base struct {
	PolicyName   string
	LogExecution bool
}

// Name returns the administrator-assigned policy name.
func (b Base) Name() string { return b.PolicyName }

// ExecutionLogging reports whether outcomes are audit-logged.
func (b Base) ExecutionLogging() bool { return b.LogExecution }
