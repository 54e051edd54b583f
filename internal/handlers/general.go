package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agribot/internal/domain"
)

// GeneralHandler covers agronomy questions that no specialist owns: crop
// selection, soil health, sowing practices. It is pure completer.
type GeneralHandler struct {
	completer domain.Completer
	logger    *slog.Logger
}

func NewGeneralHandler(completer domain.Completer, logger *slog.Logger) *GeneralHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneralHandler{completer: completer, logger: logger}
}

func (h *GeneralHandler) Descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		ID:       domain.HandlerGeneral,
		Keywords: []string{"farming practice", "soil", "sowing", "crop selection", "fertilizer", "advice"},
		Priority: 5,
	}
}

func (h *GeneralHandler) Execute(ctx context.Context, req *domain.Request) (domain.HandlerPayload, error) {
	if h.completer == nil {
		return nil, fmt.Errorf("no completer configured")
	}

	var b strings.Builder
	b.WriteString("You are an experienced agronomist advising a smallholder farmer. ")
	b.WriteString("Answer practically and concretely, in simple language.\n")
	if req.Context.Location != "" {
		b.WriteString("Location: " + req.Context.Location + "\n")
	}
	if req.Context.Crop != "" {
		b.WriteString("Crop: " + req.Context.Crop + "\n")
	}
	b.WriteString("Question: " + req.Text)

	reply, err := h.completer.Complete(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("general advice: %w", err)
	}
	return domain.GeneralPayload{Advice: strings.TrimSpace(reply)}, nil
}
