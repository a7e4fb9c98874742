// Package retry bounds the retries a source client makes before it gives up
// on a request.
//
// Delays come from an exponential backoff (github.com/cenkalti/backoff) and
// the attempt count is capped, three by default. Only transient failures are
// retried: throttling, access and validation errors return at once so the
// caller can escalate them.
//
//	err := retry.Do(ctx, func() error {
//		return client.fetchPage(ctx, url)
//	}, nil)
package retry
