// Package instagram is the HTTP source the collector enumerates relations
// through.
//
// EstimateCount reads the follower and following counts from the web
// profile endpoint. Iterate pages through /api/v1/friendships/<id>/followers/
// (or following/) with a max_id cursor, one page at a time.
//
// Every request passes a client-side token bucket first, and transient
// failures are retried a bounded number of times with exponential backoff.
// Throttling is never retried here: it surfaces as an *Error whose ErrorKind
// is throttled, and the collector decides what to do about it.
package instagram
