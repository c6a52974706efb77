// Package cache abstracts the shared plan cache behind a small key-value
// interface with prefix enumeration, with Redis and in-process
// implementations.
//
// # What this package must NOT do
//
//   - Know what a plan is; values are opaque bytes.
//   - Take distributed locks. Racing writers on one key are harmless
//     because plan computation is idempotent.
package cache
