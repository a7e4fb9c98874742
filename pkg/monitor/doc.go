// Package monitor is the collection orchestrator and the outward API of the
// engine.
//
// Run loads the previous snapshots of a subject, collects followers and then
// followees, and stores a diff report for every kind that completed. The
// remaining operations read stored state only, except Mutual with refresh,
// which collects two subjects concurrently before comparing them.
package monitor
