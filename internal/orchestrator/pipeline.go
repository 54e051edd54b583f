package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agribot/internal/domain"
	"agribot/internal/metrics"
)

// Pipeline is the end-to-end request path: route, execute, synthesize,
// remember. One instance serves all channels.
type Pipeline struct {
	router       RequestRouter
	coordinator  *Coordinator
	synthesizer  *Synthesizer
	memory       domain.MemoryStore
	metrics      *metrics.App
	historyLimit int
	semaphore    chan struct{}
	logger       *slog.Logger
}

// RequestRouter produces the routing decision for a request.
type RequestRouter interface {
	Route(ctx context.Context, req *domain.Request) domain.RoutingDecision
}

type PipelineConfig struct {
	Router        RequestRouter
	Coordinator   *Coordinator
	Synthesizer   *Synthesizer
	Memory        domain.MemoryStore // optional
	Metrics       *metrics.App       // optional
	MaxConcurrent int
	HistoryLimit  int // prior exchanges offered to synthesis, default 3
	Logger        *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		router:       cfg.Router,
		coordinator:  cfg.Coordinator,
		synthesizer:  cfg.Synthesizer,
		memory:       cfg.Memory,
		metrics:      cfg.Metrics,
		historyLimit: cfg.HistoryLimit,
		semaphore:    make(chan struct{}, cfg.MaxConcurrent),
		logger:       cfg.Logger,
	}
}

// Handle processes one inbound request to completion. The only error it
// returns is request validation; every downstream failure degrades the
// answer instead.
func (p *Pipeline) Handle(ctx context.Context, in domain.InboundRequest) (domain.SynthesizedAnswer, error) {
	req := p.buildRequest(in)
	if err := req.Validate(); err != nil {
		return domain.SynthesizedAnswer{}, fmt.Errorf("invalid request: %w", err)
	}

	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return domain.SynthesizedAnswer{}, ctx.Err()
	}

	start := time.Now()
	if p.metrics != nil {
		p.metrics.RequestsTotal.Inc()
	}

	if p.memory != nil {
		history, err := p.memory.RecentExchanges(ctx, req.SessionID, p.historyLimit)
		if err != nil {
			p.logger.Warn("memory: recent exchanges failed", "error", err)
		} else {
			req.Context.History = history
		}
	}

	decision := p.router.Route(ctx, req)
	p.logger.Info("routed request",
		"request", req.ID,
		"selected", decision.Selected,
		"confidence", decision.Confidence,
		"fallback", decision.Fallback,
	)
	if p.metrics != nil {
		if decision.Fallback {
			p.metrics.RoutingFallbacks.Inc()
		}
		if decision.Direct() {
			p.metrics.DirectAnswers.Inc()
		}
	}

	results := p.coordinator.Execute(ctx, decision, req)
	if p.metrics != nil {
		for _, r := range results {
			p.metrics.HandlerLatency.Observe(r.Elapsed.Seconds())
			if !r.Success {
				p.metrics.HandlerFailures.Inc()
			}
		}
	}

	answer := p.synthesizer.Synthesize(ctx, decision, results, req)

	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.RequestLatency.Observe(elapsed.Seconds())
	}
	p.logger.Info("request complete",
		"request", req.ID,
		"quality", answer.Quality,
		"elapsed", elapsed,
	)

	p.remember(ctx, in, req, decision, answer, elapsed)
	return answer, nil
}

func (p *Pipeline) buildRequest(in domain.InboundRequest) *domain.Request {
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	modality := in.Modality
	if modality == "" {
		modality = domain.ModalityText
	}
	return &domain.Request{
		ID:        uuid.NewString(),
		SessionID: sessionID(in),
		Text:      strings.TrimSpace(in.Text),
		Modality:  modality,
		Language:  lang,
		ImageRef:  in.ImageRef,
		Context: domain.RequestContext{
			Location: in.Location,
			Crop:     in.Crop,
		},
		ReceivedAt: time.Now(),
	}
}

func sessionID(in domain.InboundRequest) string {
	return in.Channel + ":" + in.ChatID
}

func (p *Pipeline) remember(ctx context.Context, in domain.InboundRequest, req *domain.Request, decision domain.RoutingDecision, answer domain.SynthesizedAnswer, elapsed time.Duration) {
	if p.memory == nil {
		return
	}
	conv := domain.Conversation{
		ID:      req.SessionID,
		Channel: in.Channel,
		ChatID:  in.ChatID,
	}
	if err := p.memory.EnsureConversation(ctx, conv); err != nil {
		p.logger.Warn("memory: ensure conversation failed", "error", err)
		return
	}
	ex := domain.Exchange{
		ConversationID: req.SessionID,
		Query:          req.Text,
		Answer:         answer.Text,
		Handlers:       strings.Join(decision.Selected, ","),
		Quality:        answer.Quality,
		ElapsedMs:      elapsed.Milliseconds(),
	}
	if err := p.memory.AddExchange(ctx, ex); err != nil {
		p.logger.Warn("memory: add exchange failed", "error", err)
	}
}
