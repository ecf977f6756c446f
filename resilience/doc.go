// Package resilience provides the admission limits put in front of stream
// endpoints.
//
//   - Bulkhead: caps the number of streams open at once.
//   - RateLimiter: caps how fast new streams are opened (token bucket).
//
// Both come in keyed variants that keep one limiter per client and drop it
// once the client is idle, so a busy client cannot starve the others:
//
//	open := resilience.NewKeyedBulkhead(resilience.BulkheadConfig{Name: "streams", MaxConcurrent: 8})
//	rate := resilience.NewKeyedRateLimiter(resilience.RateLimiterConfig{Name: "streams", Rate: 2, Burst: 5})
//
//	if !rate.Allow(clientID) {
//	    return errors.LimitExceeded("streams", "stream rate exceeded")
//	}
//	return open.Execute(ctx, clientID, func() error {
//	    return sse.Serve(ctx, w, op, opts)
//	})
//
// Refusals are LIMIT_EXCEEDED errors; the OnReject and OnLimit hooks let
// callers count them.
package resilience
