package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agribot/internal/domain"
	"agribot/internal/knowledge"
)

func testRanges(t *testing.T) *knowledge.PriceRanges {
	t.Helper()
	pr, err := knowledge.LoadPriceRanges("", testLogger())
	if err != nil {
		t.Fatalf("load ranges: %v", err)
	}
	return pr
}

func newMarketHandler(t *testing.T, tableURL string, completer domain.Completer) *MarketHandler {
	t.Helper()
	return NewMarketHandler(MarketHandlerConfig{
		TableURL:    tableURL,
		CacheTTL:    time.Minute,
		TierTimeout: 2 * time.Second,
		NearbyLimit: 2,
		Completer:   completer,
		Ranges:      testRanges(t),
		Logger:      testLogger(),
	})
}

func marketRequest(text string) *domain.Request {
	return &domain.Request{
		Text:     text,
		Modality: domain.ModalityText,
		Context:  domain.RequestContext{Location: "Pune"},
	}
}

func TestMarketTier1Hit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"commodity":"wheat","market":"Pune APMC","modal_price":2400},
			{"commodity":"wheat","market":"Baramati","modal_price":2350}]`)
	}))
	defer srv.Close()

	mc := &mockCompleter{reply: "Sell after the festival rush."}
	h := newMarketHandler(t, srv.URL, mc)

	payload, err := h.Execute(context.Background(), marketRequest("wheat price today"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	mp := payload.(domain.MarketPayload)
	if len(mp.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(mp.Quotes))
	}
	if mp.Quotes[0].Tier != 1 {
		t.Errorf("quotes should come from tier 1, got tier %d", mp.Quotes[0].Tier)
	}
	if len(mp.TierLog) != 1 || mp.TierLog[0].Outcome != "hit" {
		t.Errorf("expected single-hit tier log, got %+v", mp.TierLog)
	}
	if mp.Trend.Avg != 2375 {
		t.Errorf("unexpected trend avg %v", mp.Trend.Avg)
	}
	if mp.Trend.Direction != "stable" {
		t.Errorf("narrow spread should read stable, got %q", mp.Trend.Direction)
	}
}

func TestMarketTier1ImplausibleEscalates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 90 is below any plausible wheat band; parse noise.
		fmt.Fprint(w, `[{"commodity":"wheat","market":"Pune APMC","modal_price":90}]`)
	}))
	defer srv.Close()

	mc := &mockCompleter{replies: []string{
		`[{"market":"Baramati","price":2300}]`, // tier 2 direct search
		"advisory text",                        // selling advisory
	}}
	h := newMarketHandler(t, srv.URL, mc)

	payload, err := h.Execute(context.Background(), marketRequest("wheat price today"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	mp := payload.(domain.MarketPayload)
	if len(mp.TierLog) != 2 {
		t.Fatalf("expected two attempts, got %+v", mp.TierLog)
	}
	if mp.TierLog[0].Outcome != "miss" || mp.TierLog[1].Outcome != "hit" {
		t.Errorf("unexpected tier log %+v", mp.TierLog)
	}
	if len(mp.Quotes) != 1 || mp.Quotes[0].Market != "Baramati" {
		t.Errorf("expected tier-2 quote, got %+v", mp.Quotes)
	}
}

func TestMarketAllNumericTiersMissGuidance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mc := &mockCompleter{replies: []string{
		`[]`,           // tier 2 direct search: nothing
		`[]`,           // tier 2 nearby towns: nothing
		"Check the eNAM portal for wheat rates; prices usually firm up after harvest.", // tier 3 guidance
	}}
	h := newMarketHandler(t, srv.URL, mc)

	payload, err := h.Execute(context.Background(), marketRequest("wheat price today"))
	if err != nil {
		t.Fatalf("all-tier miss must not error: %v", err)
	}
	mp := payload.(domain.MarketPayload)
	if len(mp.Quotes) != 1 || !mp.Quotes[0].Informational() {
		t.Fatalf("expected one informational guidance quote, got %+v", mp.Quotes)
	}
	if mp.Quotes[0].Tier != 3 {
		t.Errorf("guidance should be tier 3, got %d", mp.Quotes[0].Tier)
	}
	if len(mp.TierLog) != 3 {
		t.Errorf("expected three attempts, got %+v", mp.TierLog)
	}
	if mp.Trend.Direction != "unknown" {
		t.Errorf("informational-only payload should have unknown trend, got %q", mp.Trend.Direction)
	}
}

func TestMarketCacheServesRepeat(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `[{"commodity":"wheat","market":"Pune APMC","modal_price":2400}]`)
	}))
	defer srv.Close()

	h := newMarketHandler(t, srv.URL, &mockCompleter{reply: "advice"})
	req := marketRequest("wheat price today")

	if _, err := h.Execute(context.Background(), req); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	payload, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if hits != 1 {
		t.Errorf("second request should be served from cache, portal hit %d times", hits)
	}
	mp := payload.(domain.MarketPayload)
	if len(mp.TierLog) != 1 || mp.TierLog[0].Outcome != "cache" {
		t.Errorf("expected cache attempt log, got %+v", mp.TierLog)
	}
}

func TestMarketParseRenderedTable(t *testing.T) {
	h := newMarketHandler(t, "http://unused", nil)
	body := "Commodity prices today\nWheat Pune APMC 2400\nWheat Baramati 2350\nOnion Pune 1200\n"
	quotes := h.parseTable(body, "wheat")
	if len(quotes) != 2 {
		t.Fatalf("expected 2 wheat rows, got %d", len(quotes))
	}
	if quotes[0].Price != 2400 || quotes[1].Price != 2350 {
		t.Errorf("unexpected prices: %+v", quotes)
	}
}

func TestComputeTrendDirections(t *testing.T) {
	quotes := func(prices ...float64) []domain.PriceQuote {
		out := make([]domain.PriceQuote, len(prices))
		for i, p := range prices {
			out[i] = domain.PriceQuote{Commodity: "wheat", Price: p}
		}
		return out
	}

	cases := []struct {
		name   string
		quotes []domain.PriceQuote
		want   string
	}{
		// avg 2500, max 3000 > 2750
		{"rising", quotes(2000, 3000), "rising"},
		// avg ~2283, min 2000 < ~2055, max 2450 below the rising bar
		{"falling", quotes(2000, 2400, 2450), "falling"},
		{"stable", quotes(2350, 2400), "stable"},
		{"informational only", []domain.PriceQuote{{Commodity: "wheat", Note: "check local mandi"}}, "unknown"},
	}
	for _, tc := range cases {
		trend := computeTrend(tc.quotes)
		if trend.Direction != tc.want {
			t.Errorf("%s: got direction %q, want %q", tc.name, trend.Direction, tc.want)
		}
	}
}

func TestDetectCommodity(t *testing.T) {
	cases := []struct {
		text, crop, want string
	}{
		{"wheat price in pune", "", "wheat"},
		{"sweet potato rates", "", "sweet potato"},
		{"what can I sell for", "Cotton", "cotton"},
		{"price today", "", ""},
	}
	for _, tc := range cases {
		if got := detectCommodity(tc.text, tc.crop); got != tc.want {
			t.Errorf("detectCommodity(%q, %q) = %q, want %q", tc.text, tc.crop, got, tc.want)
		}
	}
}
