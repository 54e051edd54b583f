package domain

// Handler ids. The registry is fixed at process start; routing only ever
// selects from this set.
const (
	HandlerWeather = "weather"
	HandlerPest    = "pest"
	HandlerMarket  = "market"
	HandlerFinance = "finance"
	HandlerGeneral = "general"
)

// HandlerDescriptor describes one registered capability handler.
type HandlerDescriptor struct {
	ID       string
	Keywords []string // capability keywords shown to the classifier
	Priority int      // lower = summarized first in fallback synthesis
}

// RoutingDecision is produced once per request and never mutated. Selected is
// ordered with the primary handler first. An empty Selected with a non-empty
// DirectAnswer short-circuits execution and synthesis entirely.
type RoutingDecision struct {
	Selected     []string
	Confidence   float64 // 0..1
	Rationale    string
	DirectAnswer string // set only when Selected is empty
	Fallback     bool   // true when the keyword table produced this decision
}

// Direct reports whether the decision bypasses handler execution.
func (d RoutingDecision) Direct() bool {
	return len(d.Selected) == 0
}

// Primary returns the primary handler id, or "" for direct decisions.
func (d RoutingDecision) Primary() string {
	if len(d.Selected) == 0 {
		return ""
	}
	return d.Selected[0]
}
