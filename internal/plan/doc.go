// Package plan materializes ordered stage plans and owns the cache
// fingerprint scheme.
//
// # Fingerprints
//
// A cache key is "<prefix>:<flow-id>#<sha256>", where the hash covers the
// principal identity, sorted group set, impersonation marker, and a
// configured attribute whitelist. The "<prefix>:<flow-id>" part is the
// flow's invalidation prefix.
//
// # What this package must NOT do
//
//   - Evaluate policies; it delegates to the resolver.
//   - Hash unlisted request attributes or secrets into keys.
package plan
