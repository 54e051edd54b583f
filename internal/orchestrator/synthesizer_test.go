package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agribot/internal/domain"
)

type mockCompleter struct {
	reply string
	err   error
	calls int
	last  string
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.last = prompt
	return m.reply, m.err
}

func (m *mockCompleter) Name() string { return "mock" }

func (m *mockCompleter) Healthy(ctx context.Context) error { return nil }

func synthDescriptors() []domain.HandlerDescriptor {
	return []domain.HandlerDescriptor{
		{ID: "weather", Priority: 1},
		{ID: "market", Priority: 3},
		{ID: "finance", Priority: 4},
	}
}

func TestSynthesizeDirectPassthrough(t *testing.T) {
	mc := &mockCompleter{}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{DirectAnswer: "Hello! How can I help?"}
	ans := s.Synthesize(context.Background(), decision, nil, testRequest())
	if ans.Text != decision.DirectAnswer {
		t.Errorf("direct answer must pass through unchanged, got %q", ans.Text)
	}
	if mc.calls != 0 {
		t.Errorf("completer must not run for direct answers, got %d calls", mc.calls)
	}
}

func TestSynthesizeMergesWithCompleter(t *testing.T) {
	mc := &mockCompleter{reply: "Rain is expected; sell after the showers pass."}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"weather", "market"}}
	results := map[string]domain.ExecutionResult{
		"weather": {HandlerID: "weather", Success: true, Payload: domain.WeatherPayload{Location: "Pune", Temperature: 28, Condition: "cloudy"}},
		"market":  {HandlerID: "market", Success: true, Payload: domain.MarketPayload{Commodity: "wheat"}},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if ans.Text != mc.reply {
		t.Errorf("expected completer reply, got %q", ans.Text)
	}
	if ans.Quality != 1 {
		t.Errorf("clean merge should score 1, got %v", ans.Quality)
	}
	if !strings.Contains(mc.last, "[weather]") || !strings.Contains(mc.last, "[market]") {
		t.Error("merge prompt should include each handler's summary section")
	}
}

func TestSynthesizeIncludesConversationHistory(t *testing.T) {
	mc := &mockCompleter{reply: "Yes, irrigate lightly before the rain."}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	req := testRequest()
	req.Context.History = []domain.Exchange{
		{Query: "weather in pune", Answer: "28C and clear skies"},
	}
	decision := domain.RoutingDecision{Selected: []string{"weather"}}
	results := map[string]domain.ExecutionResult{
		"weather": {HandlerID: "weather", Success: true, Payload: domain.WeatherPayload{Location: "Pune"}},
	}
	s.Synthesize(context.Background(), decision, results, req)
	if !strings.Contains(mc.last, "weather in pune") || !strings.Contains(mc.last, "28C and clear skies") {
		t.Errorf("merge prompt should carry recent exchanges, got:\n%s", mc.last)
	}
}

func TestSynthesizeEmptySummariesYieldCannedAnswer(t *testing.T) {
	mc := &mockCompleter{err: errors.New("down")}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"general"}}
	results := map[string]domain.ExecutionResult{
		"general": {HandlerID: "general", Success: true, Payload: domain.GeneralPayload{}},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if ans.Text == "" {
		t.Fatal("caller must always receive a textual answer")
	}
	if ans.Quality != 0.1 {
		t.Errorf("text-free fallback should score minimum quality, got %v", ans.Quality)
	}
}

func TestSynthesizeFallbackConcatenatesByPriority(t *testing.T) {
	mc := &mockCompleter{err: errors.New("service down")}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"market", "weather"}}
	results := map[string]domain.ExecutionResult{
		"market":  {HandlerID: "market", Success: true, Payload: domain.MarketPayload{Commodity: "wheat", Location: "Pune"}},
		"weather": {HandlerID: "weather", Success: true, Payload: domain.WeatherPayload{Location: "Pune", Temperature: 28, Condition: "cloudy"}},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if ans.Text == "" {
		t.Fatal("fallback answer must not be empty")
	}
	wIdx := strings.Index(ans.Text, results["weather"].Payload.Summary())
	mIdx := strings.Index(ans.Text, results["market"].Payload.Summary())
	if wIdx < 0 || mIdx < 0 {
		t.Fatalf("fallback should contain both summaries: %q", ans.Text)
	}
	if wIdx > mIdx {
		t.Error("weather (priority 1) should precede market (priority 3) in fallback output")
	}
	if ans.Quality >= 1 {
		t.Errorf("summary fallback should lower quality, got %v", ans.Quality)
	}
}

func TestSynthesizeSurvivingHandlerOnly(t *testing.T) {
	mc := &mockCompleter{err: errors.New("down")}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"weather", "market"}}
	results := map[string]domain.ExecutionResult{
		"weather": {HandlerID: "weather", Success: true, Payload: domain.WeatherPayload{Location: "Pune", Temperature: 30}},
		"market":  {HandlerID: "market", Success: false, Err: "portal down"},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if ans.Text == "" {
		t.Fatal("answer must derive from the surviving handler")
	}
	if !strings.Contains(ans.Text, "Pune") {
		t.Errorf("answer should come from the weather payload: %q", ans.Text)
	}
}

func TestSynthesizeAllFailed(t *testing.T) {
	mc := &mockCompleter{reply: "unused"}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"weather"}}
	results := map[string]domain.ExecutionResult{
		"weather": {HandlerID: "weather", Success: false, Err: "timeout"},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if ans.Text == "" {
		t.Fatal("all-failed run must still produce a message")
	}
	if ans.Quality > 0.2 {
		t.Errorf("all-failed answer should carry a minimal quality, got %v", ans.Quality)
	}
	if mc.calls != 0 {
		t.Error("completer should not run when no handler succeeded")
	}
}

func TestSynthesizeEmptyReplyFallsBack(t *testing.T) {
	mc := &mockCompleter{reply: "   "}
	s := NewSynthesizer(mc, synthDescriptors(), testLogger())

	decision := domain.RoutingDecision{Selected: []string{"weather"}}
	results := map[string]domain.ExecutionResult{
		"weather": {HandlerID: "weather", Success: true, Payload: domain.WeatherPayload{Location: "Nashik", Temperature: 25}},
	}
	ans := s.Synthesize(context.Background(), decision, results, testRequest())
	if !strings.Contains(ans.Text, "Nashik") {
		t.Errorf("empty completer reply should fall back to summaries: %q", ans.Text)
	}
}
