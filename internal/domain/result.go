package domain

import "time"

// PayloadKind tags the concrete type of a handler payload.
type PayloadKind string

const (
	PayloadWeather PayloadKind = "weather"
	PayloadMarket  PayloadKind = "market"
	PayloadFinance PayloadKind = "finance"
	PayloadPest    PayloadKind = "pest"
	PayloadGeneral PayloadKind = "general"
)

// HandlerPayload is the tagged union over per-handler result schemas. Each
// handler returns its own concrete type; the synthesizer only relies on
// Kind() and Summary().
type HandlerPayload interface {
	Kind() PayloadKind
	// Summary renders a short deterministic text used by the synthesis
	// fallback path. Must not call external services.
	Summary() string
}

// ExecutionResult is the outcome of one handler invocation. Exactly one is
// produced per selected handler: Err is set (and Success false) when the
// handler failed, timed out, or panicked.
type ExecutionResult struct {
	HandlerID string
	Success   bool
	Payload   HandlerPayload
	Err       string
	Elapsed   time.Duration
}

// SynthesizedAnswer is the terminal artifact of a request.
type SynthesizedAnswer struct {
	Text    string
	Quality float64 // 0..1; degraded paths score lower
	Results map[string]ExecutionResult
}

// --- Concrete payloads ---

// WeatherPayload carries current conditions plus a short daily forecast.
type WeatherPayload struct {
	Location    string
	Temperature float64 // °C
	FeelsLike   float64
	Humidity    int // percent
	Condition   string
	WindKmh     float64
	Forecast    []ForecastDay
	Advisory    string // LLM advisory text, may be empty
}

type ForecastDay struct {
	Date      string
	DayName   string
	MinTemp   float64
	MaxTemp   float64
	Humidity  float64
	Condition string
	RainProb  float64 // percent
}

func (WeatherPayload) Kind() PayloadKind { return PayloadWeather }

// MarketPayload carries price quotes gathered by the tiered fetcher plus the
// deterministic trend summary.
type MarketPayload struct {
	Commodity string
	Location  string
	Quotes    []PriceQuote
	Trend     PriceTrend
	Advisory  string
	TierLog   []TierAttempt
}

// PriceQuote is one price record from a market source. Informational entries
// (tier 3 guidance with no numeric price) have Price == 0 and a non-empty Note.
type PriceQuote struct {
	Commodity string
	Price     float64 // ₹/quintal; 0 for informational entries
	Market    string
	Source    string
	Note      string
	Tier      int
	FetchedAt time.Time
}

// Informational reports whether the quote carries guidance text rather than a
// usable numeric price.
func (q PriceQuote) Informational() bool { return q.Price == 0 }

type PriceTrend struct {
	Direction string // rising | falling | stable | unknown
	Min       float64
	Max       float64
	Avg       float64
}

// TierAttempt is one entry of the escalation log, kept for observability only.
type TierAttempt struct {
	Tier    int
	Outcome string // hit | miss | cache
}

func (MarketPayload) Kind() PayloadKind { return PayloadMarket }

// FinancePayload carries matched schemes and advice.
type FinancePayload struct {
	Schemes  []SchemeMatch
	Advisory string
}

type SchemeMatch struct {
	Name        string
	Category    string
	Summary     string
	Eligibility string
	Score       float64
}

func (FinancePayload) Kind() PayloadKind { return PayloadFinance }

// PestPayload carries the image classification and treatment advice.
type PestPayload struct {
	Label        string
	Confidence   float64
	Alternatives []Classification
	Advisory     string
}

func (PestPayload) Kind() PayloadKind { return PayloadPest }

// GeneralPayload carries free-text agronomy advice.
type GeneralPayload struct {
	Advice   string
	Greeting bool
}

func (GeneralPayload) Kind() PayloadKind { return PayloadGeneral }
