package policy

import (
	"context"
	"errors"
	"fmt"
)

// ErrNilPolicy is reported when a policy binding references no policy
// implementation.
var ErrNilPolicy = errors.New("nil policy")

// Evaluate runs a single policy against req and fails closed.
//
// The result is always usable by the caller: internal failures (returned
// errors and panics alike) degrade to Passed=false with
// [ReasonPolicyError] instead of propagating. The returned error carries
// the failure detail for the audit trail and is non-nil only in that
// degraded case.
func Evaluate(ctx context.Context, p Policy, req *Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Passed: false, Reason: ReasonPolicyError}
			err = fmt.Errorf("policy panicked: %v", r)
		}
	}()

	if p == nil {
		return Result{Passed: false, Reason: ReasonPolicyError}, ErrNilPolicy
	}

	res, evalErr := p.Evaluate(ctx, req)
	if evalErr != nil {
		return Result{Passed: false, Reason: ReasonPolicyError},
			fmt.Errorf("policy %q: %w", p.Name(), evalErr)
	}

	return res, nil
}
