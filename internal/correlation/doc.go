// Package correlation carries the per-request correlation tag through
// context.Context.
//
// The tag is strictly request-scoped: it is attached when a request enters
// the process and dies with the request context. Nothing in this package
// holds shared mutable state, so concurrent requests can never observe
// each other's identifiers.
//
// # What this package must NOT do
//
//   - Keep tags in globals or thread-locals.
//   - Import any sibling package.
package correlation
