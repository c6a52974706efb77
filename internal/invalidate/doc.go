// Package invalidate purges cached plans when flow configuration
// mutates. It subscribes to the mutation bus and deletes cache entries by
// flow fingerprint prefix.
//
// Invalidation runs synchronously with the mutation that triggers it, so
// a plan call issued after a write acknowledges never sees the flow's old
// plan. Delivery failures are logged and counted, never fatal.
package invalidate
