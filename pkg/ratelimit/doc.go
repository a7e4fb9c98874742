// Package ratelimit paces requests to the upstream directory service.
//
// The Governor is the single pacing authority of a process. It combines:
//
//   - a fixed-window request ceiling (15 requests per 60 seconds by default)
//   - a random jitter delay before every paced request
//   - a longer pause every batch of processed items
//   - a cool-down escalation when the upstream reports throttling
//
// Usage:
//
//	gov := ratelimit.NewGovernor(ratelimit.DefaultOptions(), ratelimit.SystemClock{}, log)
//
//	if err := gov.Throttle(ctx); err != nil {
//	    return err // cancelled while waiting
//	}
//
//	decision, err := gov.ReportThrottled(ctx, cause, prompter)
//	if decision == ratelimit.DecisionRetry {
//	    // the window has been reset after the cool-down
//	}
//
// All waiting goes through a Clock so tests can run the Governor against a
// FakeClock without sleeping. TokenBucket wraps golang.org/x/time/rate for
// the per-page ceiling applied inside the source client.
package ratelimit
