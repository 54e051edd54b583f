package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"agribot/internal/domain"
	"agribot/internal/fetch"
	"agribot/internal/knowledge"
	"agribot/internal/llm"
)

// PortalScraper renders a JS-heavy portal page and returns its text. The
// market handler uses it when the plain HTTP fetch comes back empty.
type PortalScraper interface {
	FetchText(ctx context.Context, url, selector string) (string, error)
}

// MarketHandler answers commodity price questions through three escalating
// tiers: the government portal's table endpoint, a completer-backed search
// scoped to the location (with a bounded nearby follow-up), and finally
// general guidance with no numbers.
type MarketHandler struct {
	tableURL  string
	portalURL string
	client    *http.Client
	scraper   PortalScraper // optional
	completer domain.Completer
	ranges    *knowledge.PriceRanges
	fetcher   *fetch.Fetcher[[]domain.PriceQuote]
	nearby    int
	logger    *slog.Logger
}

type MarketHandlerConfig struct {
	TableURL    string
	PortalURL   string
	CacheTTL    time.Duration
	TierTimeout time.Duration
	NearbyLimit int
	Scraper     PortalScraper // optional
	Completer   domain.Completer
	Ranges      *knowledge.PriceRanges
	OnAttempt   func(fetch.Attempt) // optional, forwarded to the fetcher
	Logger      *slog.Logger
}

func NewMarketHandler(cfg MarketHandlerConfig) *MarketHandler {
	if cfg.NearbyLimit <= 0 {
		cfg.NearbyLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MarketHandler{
		tableURL:  cfg.TableURL,
		portalURL: cfg.PortalURL,
		client:    &http.Client{Timeout: 20 * time.Second},
		scraper:   cfg.Scraper,
		completer: cfg.Completer,
		ranges:    cfg.Ranges,
		fetcher: fetch.NewFetcher[[]domain.PriceQuote](fetch.FetcherConfig{
			CacheTTL:    cfg.CacheTTL,
			TierTimeout: cfg.TierTimeout,
			OnAttempt:   cfg.OnAttempt,
			Logger:      cfg.Logger,
		}),
		nearby: cfg.NearbyLimit,
		logger: cfg.Logger,
	}
}

func (h *MarketHandler) Descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		ID:       domain.HandlerMarket,
		Keywords: []string{"price", "market", "mandi", "sell", "buy", "rate", "commodity"},
		Priority: 3,
	}
}

func (h *MarketHandler) Execute(ctx context.Context, req *domain.Request) (domain.HandlerPayload, error) {
	commodity := detectCommodity(req.Text, req.Context.Crop)
	if commodity == "" {
		return nil, fmt.Errorf("could not determine commodity from request")
	}
	location := req.Context.Location
	if location == "" {
		location = extractLocation(req.Text)
	}
	if location == "" {
		location = "local markets"
	}

	key := commodity + "|" + normalizeLocation(location)
	tiers := []fetch.Tier[[]domain.PriceQuote]{
		fetch.TierFunc[[]domain.PriceQuote]{TierName: "portal", Fn: func(ctx context.Context) ([]domain.PriceQuote, *fetch.Miss) {
			return h.portalTier(ctx, commodity, location)
		}},
		fetch.TierFunc[[]domain.PriceQuote]{TierName: "search", Fn: func(ctx context.Context) ([]domain.PriceQuote, *fetch.Miss) {
			return h.searchTier(ctx, commodity, location)
		}},
		fetch.TierFunc[[]domain.PriceQuote]{TierName: "guidance", Fn: func(ctx context.Context) ([]domain.PriceQuote, *fetch.Miss) {
			return h.guidanceTier(ctx, commodity, location)
		}},
	}

	quotes, attempts, ok := h.fetcher.Fetch(ctx, key, tiers)
	payload := domain.MarketPayload{
		Commodity: commodity,
		Location:  location,
		TierLog:   tierLog(attempts),
	}
	if !ok {
		// Tier 3 always produces at least guidance, so this is unusual, but
		// an empty payload is still a valid answer.
		return payload, nil
	}

	payload.Quotes = quotes
	payload.Trend = computeTrend(quotes)
	payload.Advisory = h.advisory(ctx, req, payload)
	return payload, nil
}

// --- tier 1: portal table ---

// portalTier queries the price table endpoint directly, falling back to the
// headless browser when configured and the plain response is unusable.
func (h *MarketHandler) portalTier(ctx context.Context, commodity, location string) ([]domain.PriceQuote, *fetch.Miss) {
	if h.tableURL == "" {
		return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "no table endpoint configured"}
	}

	body, err := h.fetchTable(ctx, commodity, location)
	if err != nil || strings.TrimSpace(body) == "" {
		if h.scraper == nil {
			if err != nil {
				return nil, &fetch.Miss{Reason: fetch.MissTransport, Detail: err.Error()}
			}
			return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "empty table response"}
		}
		body, err = h.scraper.FetchText(ctx, h.portalURL, "table")
		if err != nil {
			return nil, &fetch.Miss{Reason: fetch.MissTransport, Detail: err.Error()}
		}
	}

	quotes := h.parseTable(body, commodity)
	if len(quotes) == 0 {
		return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "no rows for " + commodity}
	}

	valid := h.validQuotes(quotes, commodity, 1)
	if len(valid) == 0 {
		return nil, &fetch.Miss{Reason: fetch.MissInvalid, Detail: "all prices outside plausible range"}
	}
	return valid, nil
}

func (h *MarketHandler) fetchTable(ctx context.Context, commodity, location string) (string, error) {
	q := url.Values{}
	q.Set("commodity", commodity)
	q.Set("location", location)

	req, err := http.NewRequestWithContext(ctx, "GET", h.tableURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("table endpoint returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type priceRow struct {
	Commodity string  `json:"commodity"`
	Market    string  `json:"market"`
	Price     float64 `json:"modal_price"`
}

// priceLine matches "<market text> <price>" rows in rendered table text.
var priceLine = regexp.MustCompile(`(?m)^\s*(.{3,60}?)\s+(?:₹\s*)?(\d{3,6}(?:\.\d+)?)\s*$`)

// parseTable accepts either the JSON rows some portals expose or the
// rendered text of an HTML table.
func (h *MarketHandler) parseTable(body, commodity string) []domain.PriceQuote {
	now := time.Now()

	var rows []priceRow
	if err := json.Unmarshal([]byte(body), &rows); err == nil {
		var quotes []domain.PriceQuote
		for _, r := range rows {
			if r.Commodity != "" && !strings.EqualFold(r.Commodity, commodity) {
				continue
			}
			quotes = append(quotes, domain.PriceQuote{
				Commodity: commodity,
				Price:     r.Price,
				Market:    r.Market,
				Source:    "portal",
				Tier:      1,
				FetchedAt: now,
			})
		}
		return quotes
	}

	var quotes []domain.PriceQuote
	lowerCommodity := strings.ToLower(commodity)
	for _, m := range priceLine.FindAllStringSubmatch(body, -1) {
		label := strings.TrimSpace(m[1])
		if !strings.Contains(strings.ToLower(label), lowerCommodity) {
			continue
		}
		price, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		quotes = append(quotes, domain.PriceQuote{
			Commodity: commodity,
			Price:     price,
			Market:    label,
			Source:    "portal",
			Tier:      1,
			FetchedAt: now,
		})
	}
	return quotes
}

// --- tier 2: completer search, two-phase ---

func (h *MarketHandler) searchTier(ctx context.Context, commodity, location string) ([]domain.PriceQuote, *fetch.Miss) {
	if h.completer == nil {
		return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "no completer configured"}
	}

	quotes, err := h.completerQuotes(ctx, commodity, location, 2)
	if err != nil {
		return nil, &fetch.Miss{Reason: fetch.MissTransport, Detail: err.Error()}
	}
	if len(quotes) > 0 {
		return quotes, nil
	}

	// Phase two: ask for nearby market towns and retry against those, merging
	// whatever a bounded number of them yields.
	nearby, err := h.nearbyLocations(ctx, location)
	if err != nil || len(nearby) == 0 {
		return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "no data for " + location}
	}
	var merged []domain.PriceQuote
	for _, place := range nearby {
		q, err := h.completerQuotes(ctx, commodity, place, 2)
		if err != nil {
			continue
		}
		merged = append(merged, q...)
	}
	if len(merged) == 0 {
		return nil, &fetch.Miss{Reason: fetch.MissEmpty, Detail: "no data in nearby markets"}
	}
	return merged, nil
}

func (h *MarketHandler) completerQuotes(ctx context.Context, commodity, location string, tier int) ([]domain.PriceQuote, error) {
	prompt := fmt.Sprintf(
		"Current wholesale mandi price of %s near %s in INR per quintal. "+
			`Respond with only a JSON array: [{"market":"<mandi name>","price":<number>}]. `+
			"Use [] if you do not know current prices.",
		commodity, location)
	reply, err := h.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(reply)
	if raw == "" {
		return nil, nil
	}
	var rows []struct {
		Market string  `json:"market"`
		Price  float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		if err2 := json.Unmarshal([]byte(llm.SanitizeJSONEscapes(raw)), &rows); err2 != nil {
			return nil, nil
		}
	}

	now := time.Now()
	var quotes []domain.PriceQuote
	for _, r := range rows {
		quotes = append(quotes, domain.PriceQuote{
			Commodity: commodity,
			Price:     r.Price,
			Market:    r.Market,
			Source:    "search",
			Tier:      tier,
			FetchedAt: now,
		})
	}
	return h.validQuotes(quotes, commodity, tier), nil
}

func (h *MarketHandler) nearbyLocations(ctx context.Context, location string) ([]string, error) {
	prompt := fmt.Sprintf(
		"List up to %d towns with agricultural markets near %s. "+
			`Respond with only a JSON array of strings.`, h.nearby, location)
	reply, err := h.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw := llm.ExtractJSON(reply)
	if raw == "" {
		return nil, nil
	}
	var places []string
	if err := json.Unmarshal([]byte(raw), &places); err != nil {
		return nil, nil
	}
	if len(places) > h.nearby {
		places = places[:h.nearby]
	}
	return places, nil
}

// --- tier 3: guidance ---

// guidanceTier never misses: when even the completer is down it falls back
// to a static pointer at the official sources.
func (h *MarketHandler) guidanceTier(ctx context.Context, commodity, location string) ([]domain.PriceQuote, *fetch.Miss) {
	note := fmt.Sprintf("Live %s prices are unavailable right now. Check the eNAM portal or your nearest mandi office for today's rates.", commodity)
	if h.completer != nil {
		prompt := fmt.Sprintf(
			"A farmer near %s wants to sell %s but live mandi prices are unavailable. "+
				"In 2-3 sentences, tell them where to check official prices and what typically drives %s prices this season.",
			location, commodity, commodity)
		if reply, err := h.completer.Complete(ctx, prompt); err == nil && strings.TrimSpace(reply) != "" {
			note = strings.TrimSpace(reply)
		}
	}
	return []domain.PriceQuote{{
		Commodity: commodity,
		Market:    location,
		Source:    "guidance",
		Note:      note,
		Tier:      3,
		FetchedAt: time.Now(),
	}}, nil
}

// --- shared helpers ---

func (h *MarketHandler) validQuotes(quotes []domain.PriceQuote, commodity string, tier int) []domain.PriceQuote {
	var valid []domain.PriceQuote
	for _, q := range quotes {
		if h.ranges != nil && !h.ranges.Plausible(commodity, q.Price) {
			h.logger.Debug("rejecting implausible price",
				"commodity", commodity, "price", q.Price, "market", q.Market, "tier", tier)
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

func (h *MarketHandler) advisory(ctx context.Context, req *domain.Request, p domain.MarketPayload) string {
	if h.completer == nil || len(p.Quotes) == 0 || p.Quotes[0].Informational() {
		return ""
	}
	prompt := fmt.Sprintf(
		"A farmer asks: %s\nMarket data: %s\nGive one short, practical selling recommendation.",
		req.Text, p.Summary())
	reply, err := h.completer.Complete(ctx, prompt)
	if err != nil {
		h.logger.Warn("market advisory failed", "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}

func computeTrend(quotes []domain.PriceQuote) domain.PriceTrend {
	var priced []float64
	for _, q := range quotes {
		if !q.Informational() {
			priced = append(priced, q.Price)
		}
	}
	if len(priced) == 0 {
		return domain.PriceTrend{Direction: "unknown"}
	}
	trend := domain.PriceTrend{Min: priced[0], Max: priced[0]}
	sum := 0.0
	for _, p := range priced {
		if p < trend.Min {
			trend.Min = p
		}
		if p > trend.Max {
			trend.Max = p
		}
		sum += p
	}
	trend.Avg = sum / float64(len(priced))
	switch {
	case trend.Max > trend.Avg*1.1:
		trend.Direction = "rising"
	case trend.Min < trend.Avg*0.9:
		trend.Direction = "falling"
	default:
		trend.Direction = "stable"
	}
	return trend
}

func tierLog(attempts []fetch.Attempt) []domain.TierAttempt {
	out := make([]domain.TierAttempt, len(attempts))
	for i, a := range attempts {
		out[i] = domain.TierAttempt{Tier: a.Tier, Outcome: a.Outcome}
	}
	return out
}

// knownCommodities is checked in order; longer names first so "sweet potato"
// beats "potato".
var knownCommodities = []string{
	"sweet potato", "tomato", "wheat", "rice", "paddy", "onion", "potato",
	"maize", "cotton", "soybean", "sugarcane", "chilli", "turmeric",
	"groundnut", "mustard", "banana", "mango",
}

func detectCommodity(text, crop string) string {
	lower := strings.ToLower(text)
	for _, c := range knownCommodities {
		if strings.Contains(lower, c) {
			return c
		}
	}
	return strings.ToLower(strings.TrimSpace(crop))
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}
