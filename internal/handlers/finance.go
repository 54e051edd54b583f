package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agribot/internal/domain"
)

// FinanceHandler answers loan, subsidy and scheme questions. The scheme
// catalog retriever grounds the answer; the completer turns matches into
// advice. With neither available the payload still carries the raw matches.
type FinanceHandler struct {
	retriever domain.Retriever
	completer domain.Completer
	topK      int
	logger    *slog.Logger
}

type FinanceHandlerConfig struct {
	Retriever domain.Retriever
	Completer domain.Completer // optional
	TopK      int
	Logger    *slog.Logger
}

func NewFinanceHandler(cfg FinanceHandlerConfig) *FinanceHandler {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FinanceHandler{
		retriever: cfg.Retriever,
		completer: cfg.Completer,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
	}
}

func (h *FinanceHandler) Descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		ID:       domain.HandlerFinance,
		Keywords: []string{"loan", "scheme", "subsidy", "insurance", "kcc", "government support", "credit"},
		Priority: 4,
	}
}

func (h *FinanceHandler) Execute(ctx context.Context, req *domain.Request) (domain.HandlerPayload, error) {
	var payload domain.FinancePayload

	if h.retriever != nil {
		snippets, err := h.retriever.Search(ctx, req.Text, h.topK)
		if err != nil {
			h.logger.Warn("scheme retrieval failed", "error", err)
		}
		for _, s := range snippets {
			payload.Schemes = append(payload.Schemes, domain.SchemeMatch{
				Name:     s.SchemeName,
				Category: s.Category,
				Summary:  s.Text,
				Score:    s.Score,
			})
		}
	}

	advisory, err := h.advisory(ctx, req, payload)
	if err != nil && len(payload.Schemes) == 0 {
		return nil, fmt.Errorf("no scheme matches and advisory failed: %w", err)
	}
	payload.Advisory = advisory
	return payload, nil
}

func (h *FinanceHandler) advisory(ctx context.Context, req *domain.Request, p domain.FinancePayload) (string, error) {
	if h.completer == nil {
		return "", fmt.Errorf("no completer configured")
	}

	var b strings.Builder
	b.WriteString("A farmer asks about financial support: ")
	b.WriteString(req.Text)
	b.WriteString("\n")
	if len(p.Schemes) > 0 {
		b.WriteString("Matching government schemes:\n")
		for _, s := range p.Schemes {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.Name, s.Category, s.Summary)
		}
		b.WriteString("Explain which scheme fits best and how to apply, in simple language.")
	} else {
		b.WriteString("No catalog match was found. Suggest the most relevant Indian government schemes and the application steps, in simple language.")
	}

	reply, err := h.completer.Complete(ctx, b.String())
	if err != nil {
		h.logger.Warn("finance advisory failed", "error", err)
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
