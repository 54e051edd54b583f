package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"agribot/internal/domain"
)

type stubRouter struct {
	decision domain.RoutingDecision
	seen     *domain.Request
}

func (r *stubRouter) Route(ctx context.Context, req *domain.Request) domain.RoutingDecision {
	r.seen = req
	return r.decision
}

type recordingMemory struct {
	mu        sync.Mutex
	convs     []domain.Conversation
	exchanges []domain.Exchange
	recent    []domain.Exchange // returned by RecentExchanges
}

func (m *recordingMemory) EnsureConversation(ctx context.Context, conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = append(m.convs, conv)
	return nil
}

func (m *recordingMemory) AddExchange(ctx context.Context, ex domain.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, ex)
	return nil
}

func (m *recordingMemory) RecentExchanges(ctx context.Context, conversationID string, limit int) ([]domain.Exchange, error) {
	if len(m.recent) > limit {
		return m.recent[len(m.recent)-limit:], nil
	}
	return m.recent, nil
}

func (m *recordingMemory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (m *recordingMemory) Close() error { return nil }

func newTestPipeline(decision domain.RoutingDecision, mem domain.MemoryStore, handlers ...*stubHandler) *Pipeline {
	reg := NewRegistry(testLogger())
	for _, h := range handlers {
		reg.Register(h)
	}
	mc := &mockCompleter{reply: "merged answer"}
	return NewPipeline(PipelineConfig{
		Router:      &stubRouter{decision: decision},
		Coordinator: NewCoordinator(reg, time.Second, testLogger()),
		Synthesizer: NewSynthesizer(mc, synthDescriptors(), testLogger()),
		Memory:      mem,
		Logger:      testLogger(),
	})
}

func TestHandleGreetingShortCircuit(t *testing.T) {
	h := &stubHandler{id: "weather", payload: domain.WeatherPayload{}}
	decision := domain.RoutingDecision{Confidence: 1, DirectAnswer: "Hello! What would you like to know?"}
	p := newTestPipeline(decision, nil, h)

	ans, err := p.Handle(context.Background(), domain.InboundRequest{Channel: "cli", ChatID: "c1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != decision.DirectAnswer {
		t.Errorf("expected greeting passthrough, got %q", ans.Text)
	}
	if h.calls != 0 {
		t.Errorf("no handler should run for a greeting, got %d calls", h.calls)
	}
}

func TestHandleRejectsEmptyRequest(t *testing.T) {
	p := newTestPipeline(domain.RoutingDecision{}, nil)
	_, err := p.Handle(context.Background(), domain.InboundRequest{Channel: "cli", ChatID: "c1", Text: "   "})
	if err == nil {
		t.Fatal("empty request must be rejected")
	}
}

func TestHandleEndToEnd(t *testing.T) {
	h := &stubHandler{id: "weather", payload: domain.WeatherPayload{Location: "Pune", Temperature: 28}}
	decision := domain.RoutingDecision{Selected: []string{"weather"}, Confidence: 0.9}
	mem := &recordingMemory{}
	p := newTestPipeline(decision, mem, h)

	ans, err := p.Handle(context.Background(), domain.InboundRequest{Channel: "telegram", ChatID: "42", Text: "weather in pune"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "merged answer" {
		t.Errorf("unexpected answer %q", ans.Text)
	}
	if h.calls != 1 {
		t.Errorf("handler should run once, got %d", h.calls)
	}
	if len(mem.convs) != 1 || len(mem.exchanges) != 1 {
		t.Fatalf("exchange should be persisted, got %d convs %d exchanges", len(mem.convs), len(mem.exchanges))
	}
	if mem.exchanges[0].ConversationID != "telegram:42" {
		t.Errorf("unexpected conversation id %q", mem.exchanges[0].ConversationID)
	}
	if mem.exchanges[0].Handlers != "weather" {
		t.Errorf("unexpected handlers record %q", mem.exchanges[0].Handlers)
	}
}

func TestHandleLoadsConversationHistory(t *testing.T) {
	h := &stubHandler{id: "weather", payload: domain.WeatherPayload{Location: "Pune"}}
	reg := NewRegistry(testLogger())
	reg.Register(h)
	rt := &stubRouter{decision: domain.RoutingDecision{Selected: []string{"weather"}, Confidence: 0.9}}
	mem := &recordingMemory{recent: []domain.Exchange{
		{Query: "weather in pune", Answer: "28C and clear"},
		{Query: "and tomorrow?", Answer: "light rain expected"},
	}}
	p := NewPipeline(PipelineConfig{
		Router:       rt,
		Coordinator:  NewCoordinator(reg, time.Second, testLogger()),
		Synthesizer:  NewSynthesizer(&mockCompleter{reply: "merged"}, synthDescriptors(), testLogger()),
		Memory:       mem,
		HistoryLimit: 2,
		Logger:       testLogger(),
	})

	if _, err := p.Handle(context.Background(), domain.InboundRequest{Channel: "cli", ChatID: "c1", Text: "should I irrigate?"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.seen == nil {
		t.Fatal("router never saw the request")
	}
	if len(rt.seen.Context.History) != 2 {
		t.Fatalf("expected 2 history exchanges, got %d", len(rt.seen.Context.History))
	}
	if rt.seen.Context.History[1].Query != "and tomorrow?" {
		t.Errorf("unexpected history order: %+v", rt.seen.Context.History)
	}
}

func TestHandleSurvivesHandlerFailure(t *testing.T) {
	good := &stubHandler{id: "weather", payload: domain.WeatherPayload{Location: "Pune"}}
	bad := &stubHandler{id: "market", panics: true}
	decision := domain.RoutingDecision{Selected: []string{"weather", "market"}, Confidence: 0.8}
	p := newTestPipeline(decision, nil, good, bad)

	ans, err := p.Handle(context.Background(), domain.InboundRequest{Channel: "cli", ChatID: "c1", Text: "rain and prices"})
	if err != nil {
		t.Fatalf("a failing handler must not fail the request: %v", err)
	}
	if ans.Text == "" {
		t.Error("answer must be derived from the surviving handler")
	}
	if len(ans.Results) != 2 {
		t.Errorf("expected 2 execution results, got %d", len(ans.Results))
	}
}
