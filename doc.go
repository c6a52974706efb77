// Package flowengine provides the flow execution engine of an identity
// provider: it decides which authentication stages apply to a request,
// in what order, caches that decision in Redis, and invalidates the
// cache precisely when the contributing configuration changes.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// flowengine is the public surface. It exposes [Engine], [Builder],
// [Config], the flow configuration model ([Flow], [Stage], [StageBinding],
// [PolicyBinding]), and the [FlowProvider] persistence boundary. All
// internal coordination — policy evaluation, binding resolution, plan
// caching, cache invalidation, audit dispatch — lives under internal/ and
// is never exported.
//
// # What this package must NOT do
//
//   - Render challenges, route HTTP, or persist configuration; transport
//     and storage are the embedding application's responsibility.
//   - Verify credentials. Stages are planned here and executed elsewhere.
//   - Import any sub-package that re-imports flowengine (no import cycles).
//
// # Performance contract
//
// Plan is the hot path. A cache hit costs one Redis round-trip and one
// JSON decode, with no policy evaluation and no audit side effects beyond
// a single cache-hit event.
package flowengine
