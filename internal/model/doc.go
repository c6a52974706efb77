// Package model holds the flow configuration entities shared by the
// resolver, planner, and invalidator, plus the Provider interface that
// forms the persistence boundary of the engine.
package model
