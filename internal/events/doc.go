// Package events carries flow configuration mutation events from the
// persistence owner to the cache invalidator over an explicit,
// synchronous bus.
package events
