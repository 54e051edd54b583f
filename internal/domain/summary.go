package domain

import (
	"fmt"
	"strings"
)

// Summary implementations render the deterministic per-handler text used when
// LLM synthesis is unavailable. They must stay pure: no I/O, no service calls.

func (p WeatherPayload) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current weather in %s: %s, %.1f°C (feels like %.1f°C), humidity %d%%.",
		p.Location, p.Condition, p.Temperature, p.FeelsLike, p.Humidity)
	if len(p.Forecast) > 1 {
		t := p.Forecast[1]
		fmt.Fprintf(&sb, " Tomorrow: %s, %.1f–%.1f°C, %.0f%% chance of rain.",
			t.Condition, t.MinTemp, t.MaxTemp, t.RainProb)
	}
	return sb.String()
}

func (p MarketPayload) Summary() string {
	if len(p.Quotes) == 0 {
		return fmt.Sprintf("No market data available for %s. Check your local mandi or government price portals.", p.Commodity)
	}
	var priced []PriceQuote
	for _, q := range p.Quotes {
		if !q.Informational() {
			priced = append(priced, q)
		}
	}
	if len(priced) == 0 {
		return fmt.Sprintf("%s: %s", titleCase(p.Commodity), p.Quotes[0].Note)
	}
	return fmt.Sprintf("%s prices near %s: avg ₹%.0f/quintal (range ₹%.0f–₹%.0f, %d sources), trend %s.",
		titleCase(p.Commodity), p.Location, p.Trend.Avg, p.Trend.Min, p.Trend.Max, len(priced), p.Trend.Direction)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func (p FinancePayload) Summary() string {
	if len(p.Schemes) == 0 {
		return "No matching schemes found. Visit your nearest agriculture office or bank for current programs."
	}
	names := make([]string, 0, len(p.Schemes))
	for _, s := range p.Schemes {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("Relevant schemes: %s. %s", strings.Join(names, ", "), p.Schemes[0].Summary)
}

func (p PestPayload) Summary() string {
	if p.Label == "" {
		return "Could not identify the pest or disease from the image. Try a clearer, close-up photo of the affected area."
	}
	return fmt.Sprintf("Detected: %s (%.0f%% confidence).", p.Label, p.Confidence*100)
}

func (p GeneralPayload) Summary() string {
	return p.Advice
}
