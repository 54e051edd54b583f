package metrics

// App groups the instruments the request pipeline records. Components take
// the instruments they need rather than reaching for a global collector.
type App struct {
	RequestsTotal    *Counter
	DirectAnswers    *Counter
	RoutingFallbacks *Counter
	HandlerFailures  *Counter
	TierAttempts     *Counter
	CacheHits        *Counter
	LLMRequestsTotal *Counter

	RequestLatency *Histogram
	HandlerLatency *Histogram
	LLMLatency     *Histogram
}

func NewApp(c *Collector) *App {
	return &App{
		RequestsTotal:    c.Counter("agribot_requests_total", "Total requests processed", ""),
		DirectAnswers:    c.Counter("agribot_direct_answers_total", "Requests answered without invoking handlers", ""),
		RoutingFallbacks: c.Counter("agribot_routing_fallbacks_total", "Routing decisions produced by the keyword table", ""),
		HandlerFailures:  c.Counter("agribot_handler_failures_total", "Handler invocations that failed or timed out", ""),
		TierAttempts:     c.Counter("agribot_fetch_tier_attempts_total", "Fetch tier attempts across all handlers", ""),
		CacheHits:        c.Counter("agribot_fetch_cache_hits_total", "Fetches served from the TTL cache", ""),
		LLMRequestsTotal: c.Counter("agribot_llm_requests_total", "Total completer API requests", ""),

		RequestLatency: c.Histogram("agribot_request_latency_seconds", "End-to-end request latency in seconds", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60}),
		HandlerLatency: c.Histogram("agribot_handler_latency_seconds", "Handler execution latency in seconds", "",
			[]float64{0.1, 0.5, 1, 5, 10, 30}),
		LLMLatency: c.Histogram("agribot_llm_latency_seconds", "Completer request latency in seconds", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120}),
	}
}
