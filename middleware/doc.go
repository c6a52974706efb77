// Package middleware exposes HTTP adapters that feed flowengine's request
// correlation and impersonation context from incoming requests.
//
// # Adapters
//
//   - [RequestID] — ensures every request carries a correlation tag and
//     echoes the request identifier back in a response header.
//   - [Impersonate] — loads an active impersonation record for the
//     caller's session into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into context values. It does NOT
// plan flows or evaluate policies — handlers call Engine.Plan themselves
// with the enriched context.
//
// # What this package must NOT do
//
//   - Force the impersonated principal onto a request (Engine.Plan applies
//     the override from the context record).
//   - Reject requests. Both adapters are pass-through on failure.
package middleware
