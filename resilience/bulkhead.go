package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/pushflow/errors"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies the bulkhead in errors and hooks.
	Name string
	// MaxConcurrent is the number of calls allowed at once.
	MaxConcurrent int
	// MaxWait is how long to wait for a slot. Zero fails immediately.
	MaxWait time.Duration
	// OnReject is called when a call is refused.
	OnReject func(name string)
	// OnAcquire is called when a slot is taken.
	OnAcquire func(name string)
	// OnRelease is called when a slot is given back.
	OnRelease func(name string)
}

func (c *BulkheadConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.Name == "" {
		c.Name = "bulkhead"
	}
}

// Bulkhead limits how many calls run at once. A stream holds its slot for
// as long as it is open.
type Bulkhead struct {
	config BulkheadConfig
	sem    chan struct{}
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	config.applyDefaults()
	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Execute runs fn while holding a slot. It returns a LIMIT_EXCEEDED error
// when no slot frees up within MaxWait, and CANCELLED when ctx ends first.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// Acquire takes a slot. Every successful Acquire must be paired with a
// Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		if b.config.OnReject != nil {
			b.config.OnReject(b.config.Name)
		}
		return err
	}
	if b.config.OnAcquire != nil {
		b.config.OnAcquire(b.config.Name)
	}
	return nil
}

// Release gives a slot back.
func (b *Bulkhead) Release() {
	<-b.sem
	if b.config.OnRelease != nil {
		b.config.OnRelease(b.config.Name)
	}
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}
	if b.config.MaxWait <= 0 {
		return b.full("bulkhead is full")
	}

	timer := time.NewTimer(b.config.MaxWait)
	defer timer.Stop()
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return b.full("timed out waiting for a bulkhead slot")
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err())
	}
}

func (b *Bulkhead) full(reason string) error {
	return errors.LimitExceeded(b.config.Name, reason).WithDetail("max_concurrent", b.config.MaxConcurrent)
}

// InUse returns the number of slots taken.
func (b *Bulkhead) InUse() int {
	return len(b.sem)
}

// KeyedBulkhead keeps one bulkhead per key. A key's bulkhead exists only
// while some call holds or waits for one of its slots.
type KeyedBulkhead struct {
	config BulkheadConfig

	mu      sync.Mutex
	entries map[string]*keyedBulkhead
}

type keyedBulkhead struct {
	b    *Bulkhead
	refs int
}

// NewKeyedBulkhead creates a keyed bulkhead; config applies to each key.
func NewKeyedBulkhead(config BulkheadConfig) *KeyedBulkhead {
	config.applyDefaults()
	return &KeyedBulkhead{config: config, entries: make(map[string]*keyedBulkhead)}
}

// Execute runs fn while holding a slot of key's bulkhead.
func (k *KeyedBulkhead) Execute(ctx context.Context, key string, fn func() error) error {
	b := k.ref(key)
	defer k.unref(key)
	return b.Execute(ctx, fn)
}

// InUse returns the slots taken under key.
func (k *KeyedBulkhead) InUse(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[key]; ok {
		return e.b.InUse()
	}
	return 0
}

// Keys returns the number of keys currently tracked.
func (k *KeyedBulkhead) Keys() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedBulkhead) ref(key string) *Bulkhead {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedBulkhead{b: NewBulkhead(k.config)}
		k.entries[key] = e
	}
	e.refs++
	return e.b
}

func (k *KeyedBulkhead) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
