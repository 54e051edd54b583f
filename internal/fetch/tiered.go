// Package fetch implements the tiered escalation pattern shared by the
// data-gathering handlers: try the cheapest source first, escalate on miss,
// cache whatever a tier finally produced.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// MissReason classifies why a tier produced nothing usable.
type MissReason string

const (
	MissEmpty     MissReason = "empty"     // tier returned no data
	MissInvalid   MissReason = "invalid"   // data failed plausibility validation
	MissTransport MissReason = "transport" // network or decode failure
	MissTimeout   MissReason = "timeout"   // tier exceeded its deadline
)

// Miss is the non-exceptional "this tier has nothing" signal. A nil Miss
// means the tier succeeded.
type Miss struct {
	Reason MissReason
	Detail string
}

func (m *Miss) String() string {
	if m == nil {
		return ""
	}
	if m.Detail == "" {
		return string(m.Reason)
	}
	return string(m.Reason) + ": " + m.Detail
}

// Tier is one strategy in the escalation sequence. Implementations report
// transport errors as a Miss, never as a panic, so escalation stays ordinary
// data flow.
type Tier[T any] interface {
	Name() string
	Fetch(ctx context.Context) (T, *Miss)
}

// TierFunc adapts a function to the Tier interface.
type TierFunc[T any] struct {
	TierName string
	Fn       func(ctx context.Context) (T, *Miss)
}

func (t TierFunc[T]) Name() string { return t.TierName }

func (t TierFunc[T]) Fetch(ctx context.Context) (T, *Miss) { return t.Fn(ctx) }

// Attempt records one step of the escalation for observability. Not persisted.
type Attempt struct {
	Tier    int    // 1-based tier index, 0 for the cache check
	Name    string
	Outcome string // "hit", "miss" or "cache"
	Reason  MissReason
}

// Fetcher runs an ordered tier list against a shared TTL cache.
type Fetcher[T any] struct {
	cache       *Cache[T]
	tierTimeout time.Duration
	onAttempt   func(Attempt)
	logger      *slog.Logger
}

type FetcherConfig struct {
	CacheTTL    time.Duration
	TierTimeout time.Duration
	OnAttempt   func(Attempt) // optional observer, called once per attempt
	Logger      *slog.Logger
}

func NewFetcher[T any](cfg FetcherConfig) *Fetcher[T] {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher[T]{
		cache:       NewCache[T](cfg.CacheTTL),
		tierTimeout: cfg.TierTimeout,
		onAttempt:   cfg.OnAttempt,
		logger:      cfg.Logger,
	}
}

func (f *Fetcher[T]) observe(a Attempt) {
	if f.onAttempt != nil {
		f.onAttempt(a)
	}
}

// Fetch tries each tier in order and returns the first validated result.
// A fresh cache hit for key short-circuits the whole sequence. When every
// tier misses, ok is false and the attempt log explains each miss; callers
// must treat that as an empty result, not an error.
func (f *Fetcher[T]) Fetch(ctx context.Context, key string, tiers []Tier[T]) (value T, log []Attempt, ok bool) {
	if cached, hit := f.cache.Get(key); hit {
		f.logger.Debug("fetch: cache hit", "key", key)
		a := Attempt{Tier: 0, Name: "cache", Outcome: "cache"}
		f.observe(a)
		return cached, []Attempt{a}, true
	}

	for i, tier := range tiers {
		tctx, cancel := context.WithTimeout(ctx, f.tierTimeout)
		v, miss := tier.Fetch(tctx)
		timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
		cancel()

		if miss == nil {
			a := Attempt{Tier: i + 1, Name: tier.Name(), Outcome: "hit"}
			f.observe(a)
			log = append(log, a)
			f.cache.Set(key, v)
			f.logger.Info("fetch: tier hit", "key", key, "tier", i+1, "name", tier.Name())
			return v, log, true
		}

		if timedOut && miss.Reason == MissTransport {
			miss = &Miss{Reason: MissTimeout, Detail: miss.Detail}
		}
		a := Attempt{Tier: i + 1, Name: tier.Name(), Outcome: "miss", Reason: miss.Reason}
		f.observe(a)
		log = append(log, a)
		f.logger.Info("fetch: tier miss, escalating",
			"key", key, "tier", i+1, "name", tier.Name(), "reason", miss.String())
	}

	f.logger.Warn("fetch: all tiers exhausted", "key", key, "tiers", len(tiers))
	var zero T
	return zero, log, false
}

// CacheSize reports the number of live entries, stale ones included.
func (f *Fetcher[T]) CacheSize() int { return f.cache.Len() }
