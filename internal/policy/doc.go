// Package policy defines the request evaluation context, the Policy
// capability interface, and the built-in policy variants.
//
// # Components
//
//   - [Request] / [Result] — the per-request fact bag and the pass/fail
//     outcome shape shared by every variant.
//   - [Evaluate] — the fail-closed evaluation wrapper. Panics and internal
//     errors degrade to Passed=false with reason "policy_error"; they never
//     propagate to the planning caller.
//   - Variants: [ExpressionPolicy] (Lua), [AttributePolicy],
//     [GroupMembershipPolicy], [ReputationPolicy] (Redis-backed scores).
//
// # What this package must NOT do
//
//   - Mutate the Request during evaluation.
//   - Decide binding inclusion — that is the resolver's job.
//   - Emit audit events; it only reports outcomes and error detail.
package policy
