// Package ratelimit paces requests to the remote API.
//
// Two algorithms are available. TokenBucket ("bucket") refills to full
// capacity once per period, so requests go out in bursts. SlidingWindow
// ("window", the default) counts requests over a moving window. The API
// client calls Wait before every request.
//
//	limiter, err := ratelimit.PerMinute(cfg.API.RateLimiter, cfg.API.RequestsPerMinute)
//	if err != nil {
//		return err
//	}
//	if err := limiter.Wait(ctx); err != nil {
//		return err // ctx cancelled while waiting
//	}
//
// A non-positive rate yields Unlimited, which only reports cancellation.
package ratelimit
