// Package token issues and verifies signed plan continuation tokens.
//
// A continuation token lets the transport layer carry a plan position
// across stage submissions without server-side state: it pins the flow
// slug, the plan fingerprint, and the index of the next stage. A token
// issued against a plan that has since been invalidated still parses, but
// its fingerprint no longer matches the current plan, which the caller
// must treat as a signal to replan.
//
// # What this package must NOT do
//
//   - Store or look up plans; it only binds identifiers into the token.
//   - Accept unsigned or differently-signed tokens.
package token
