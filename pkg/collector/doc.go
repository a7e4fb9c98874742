// Package collector enumerates one relation of a subject from a paginated,
// rate-limited source.
//
// A run pulls identifiers one at a time through the shared Governor, adds new
// ones to an in-progress set and saves that set as a checkpoint at a fixed
// cadence. Whatever goes wrong upstream, the run ends with a Result holding
// the accumulated set and a status:
//
//	complete   the relation was exhausted and a snapshot was written
//	partial    the caller stopped at a continue prompt
//	throttled  the upstream throttled and the cool-down was declined
//	cancelled  the context was cancelled or a large run was declined
//	failed     any other upstream error, including exhausted retries
//
// Only invalid input, inaccessible subjects, lock conflicts and storage
// failures are returned as errors.
//
// Resuming assumes the upstream enumeration is stable: identifiers already
// in the checkpoint are skipped, but a source that reorders or drops items
// between calls can still leave gaps.
package collector
