package fetch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingTier struct {
	name  string
	value string
	miss  *Miss
	calls int
}

func (t *countingTier) Name() string { return t.name }

func (t *countingTier) Fetch(ctx context.Context) (string, *Miss) {
	t.calls++
	return t.value, t.miss
}

func newTestFetcher() *Fetcher[string] {
	return NewFetcher[string](FetcherConfig{
		CacheTTL:    time.Minute,
		TierTimeout: time.Second,
		Logger:      testLogger(),
	})
}

func TestFetchStopsAtFirstHit(t *testing.T) {
	t1 := &countingTier{name: "direct", value: "price=2400"}
	t2 := &countingTier{name: "search", value: "other"}
	f := newTestFetcher()

	v, log, ok := f.Fetch(context.Background(), "wheat/pune", []Tier[string]{t1, t2})
	if !ok {
		t.Fatal("expected a result")
	}
	if v != "price=2400" {
		t.Errorf("unexpected value %q", v)
	}
	if t2.calls != 0 {
		t.Errorf("tier 2 should never run after a tier 1 hit, got %d calls", t2.calls)
	}
	if len(log) != 1 || log[0].Outcome != "hit" || log[0].Tier != 1 {
		t.Errorf("unexpected attempt log: %+v", log)
	}
}

func TestFetchEscalatesOnMiss(t *testing.T) {
	t1 := &countingTier{name: "direct", miss: &Miss{Reason: MissEmpty}}
	t2 := &countingTier{name: "search", value: "informational"}
	f := newTestFetcher()

	v, log, ok := f.Fetch(context.Background(), "k", []Tier[string]{t1, t2})
	if !ok || v != "informational" {
		t.Fatalf("expected tier 2 result, got ok=%v v=%q", ok, v)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(log))
	}
	if log[0].Outcome != "miss" || log[0].Reason != MissEmpty {
		t.Errorf("unexpected first attempt: %+v", log[0])
	}
	if log[1].Outcome != "hit" {
		t.Errorf("unexpected second attempt: %+v", log[1])
	}
}

func TestFetchAllTiersExhausted(t *testing.T) {
	t1 := &countingTier{name: "direct", miss: &Miss{Reason: MissTransport, Detail: "conn refused"}}
	t2 := &countingTier{name: "search", miss: &Miss{Reason: MissInvalid}}
	f := newTestFetcher()

	_, log, ok := f.Fetch(context.Background(), "k", []Tier[string]{t1, t2})
	if ok {
		t.Fatal("expected no result when every tier misses")
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(log))
	}
	for _, a := range log {
		if a.Outcome != "miss" {
			t.Errorf("expected miss outcome, got %+v", a)
		}
	}
}

func TestFetchFastTransportMissKeepsReason(t *testing.T) {
	// An instant connection refusal is nowhere near the tier deadline and
	// must not be reported as a timeout.
	t1 := &countingTier{name: "direct", miss: &Miss{Reason: MissTransport, Detail: "conn refused"}}
	f := newTestFetcher()

	_, log, ok := f.Fetch(context.Background(), "k", []Tier[string]{t1})
	if ok {
		t.Fatal("expected a miss")
	}
	if len(log) != 1 || log[0].Reason != MissTransport {
		t.Errorf("fast transport miss should keep reason %q, got %+v", MissTransport, log)
	}
}

func TestFetchDeadlineTransportMissBecomesTimeout(t *testing.T) {
	slow := TierFunc[string]{TierName: "direct", Fn: func(ctx context.Context) (string, *Miss) {
		<-ctx.Done()
		return "", &Miss{Reason: MissTransport, Detail: "context deadline exceeded"}
	}}
	f := NewFetcher[string](FetcherConfig{
		CacheTTL:    time.Minute,
		TierTimeout: 5 * time.Millisecond,
		Logger:      testLogger(),
	})

	_, log, ok := f.Fetch(context.Background(), "k", []Tier[string]{slow})
	if ok {
		t.Fatal("expected a miss")
	}
	if len(log) != 1 || log[0].Reason != MissTimeout {
		t.Errorf("deadline-bound transport miss should read %q, got %+v", MissTimeout, log)
	}
}

func TestFetchCacheShortCircuits(t *testing.T) {
	t1 := &countingTier{name: "direct", value: "fresh"}
	f := newTestFetcher()
	tiers := []Tier[string]{t1}

	first, _, ok := f.Fetch(context.Background(), "k", tiers)
	if !ok {
		t.Fatal("first fetch should succeed")
	}
	second, log, ok := f.Fetch(context.Background(), "k", tiers)
	if !ok {
		t.Fatal("second fetch should succeed from cache")
	}
	if first != second {
		t.Errorf("cached value differs: %q vs %q", first, second)
	}
	if t1.calls != 1 {
		t.Errorf("tier should run once, got %d calls", t1.calls)
	}
	if len(log) != 1 || log[0].Outcome != "cache" {
		t.Errorf("expected cache attempt, got %+v", log)
	}
}

func TestFetchDistinctKeysDoNotShareCache(t *testing.T) {
	t1 := &countingTier{name: "direct", value: "v"}
	f := newTestFetcher()
	tiers := []Tier[string]{t1}

	f.Fetch(context.Background(), "a", tiers)
	f.Fetch(context.Background(), "b", tiers)
	if t1.calls != 2 {
		t.Errorf("expected one tier call per key, got %d", t1.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[string](time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "v")

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected fresh hit, got ok=%v v=%q", ok, v)
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should be treated as absent")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on read, %d left", c.Len())
	}
}
