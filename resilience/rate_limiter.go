package resilience

import (
	"sync"
	"time"
)

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	// Name identifies the limiter in errors and hooks.
	Name string
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the bucket size. Defaults to Rate, and at least 1.
	Burst int
	// OnLimit is called when a request is refused.
	OnLimit func(name string)
}

func (c *RateLimiterConfig) applyDefaults() {
	if c.Rate <= 0 {
		c.Rate = 10
	}
	if c.Burst <= 0 {
		c.Burst = max(int(c.Rate), 1)
	}
	if c.Name == "" {
		c.Name = "rate_limiter"
	}
}

// RateLimiter is a token bucket. It starts full.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return newRateLimiter(config, time.Now)
}

func newRateLimiter(config RateLimiterConfig, now func() time.Time) *RateLimiter {
	config.applyDefaults()
	return &RateLimiter{
		config:     config,
		now:        now,
		tokens:     float64(config.Burst),
		lastRefill: now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	rl.refill()
	ok := rl.tokens >= 1
	if ok {
		rl.tokens--
	}
	rl.mu.Unlock()

	if !ok && rl.config.OnLimit != nil {
		rl.config.OnLimit(rl.config.Name)
	}
	return ok
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// full reports whether the bucket has refilled completely.
func (rl *RateLimiter) full() bool {
	return rl.Tokens() >= float64(rl.config.Burst)
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now
	rl.tokens = min(rl.tokens+elapsed*rl.config.Rate, float64(rl.config.Burst))
}

// KeyedRateLimiter keeps one token bucket per key. Buckets that have
// refilled completely carry no state and are dropped on the next sweep.
type KeyedRateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*RateLimiter
	lastSweep time.Time
}

// NewKeyedRateLimiter creates a keyed rate limiter; config applies to each key.
func NewKeyedRateLimiter(config RateLimiterConfig) *KeyedRateLimiter {
	return newKeyedRateLimiter(config, time.Now)
}

func newKeyedRateLimiter(config RateLimiterConfig, now func() time.Time) *KeyedRateLimiter {
	config.applyDefaults()
	return &KeyedRateLimiter{
		config:    config,
		now:       now,
		buckets:   make(map[string]*RateLimiter),
		lastSweep: now(),
	}
}

// Allow takes one token from key's bucket.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Keys returns the number of buckets currently tracked.
func (k *KeyedRateLimiter) Keys() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// refillPeriod is how long an empty bucket takes to fill up.
func (k *KeyedRateLimiter) refillPeriod() time.Duration {
	return time.Duration(float64(k.config.Burst) / k.config.Rate * float64(time.Second))
}

func (k *KeyedRateLimiter) bucket(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if now := k.now(); now.Sub(k.lastSweep) >= k.refillPeriod() {
		k.lastSweep = now
		for name, b := range k.buckets {
			if b.full() {
				delete(k.buckets, name)
			}
		}
	}

	b, ok := k.buckets[key]
	if !ok {
		b = newRateLimiter(k.config, k.now)
		k.buckets[key] = b
	}
	return b
}
