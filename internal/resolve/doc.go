// Package resolve walks a flow's stage bindings in deterministic order
// and applies restrictions and policy sets to decide stage inclusion.
//
// # What this package must NOT do
//
//   - Touch the plan cache; caching is the planner's concern.
//   - Reorder bindings beyond the (order, created-at, id) sort.
package resolve
