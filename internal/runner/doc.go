// Package runner monitors several subjects concurrently.
//
// A Pool feeds subjects to a fixed set of workers, each calling Monitor.Run.
// Per (subject, kind) exclusion is left to the collector's lock, and the
// upstream request rate to the Governor the workers share.
package runner
