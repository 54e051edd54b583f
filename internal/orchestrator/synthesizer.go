package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agribot/internal/domain"
)

const unableAnswer = "Sorry, I could not process your request right now. " +
	"Please try again in a little while."

// Synthesizer merges handler results into one answer. The completer writes
// the primary version; a deterministic concatenation of payload summaries
// covers for it, and an all-failed run still yields a polite message.
type Synthesizer struct {
	completer domain.Completer
	priority  map[string]int
	logger    *slog.Logger
}

func NewSynthesizer(completer domain.Completer, descriptors []domain.HandlerDescriptor, logger *slog.Logger) *Synthesizer {
	priority := make(map[string]int, len(descriptors))
	for _, d := range descriptors {
		priority[d.ID] = d.Priority
	}
	return &Synthesizer{
		completer: completer,
		priority:  priority,
		logger:    logger,
	}
}

// Synthesize produces the final answer. It never returns an error: every
// failure mode degrades the quality score instead of aborting.
func (s *Synthesizer) Synthesize(ctx context.Context, decision domain.RoutingDecision, results map[string]domain.ExecutionResult, req *domain.Request) domain.SynthesizedAnswer {
	// Direct decisions carry their answer already; pass it through.
	if decision.Direct() {
		return domain.SynthesizedAnswer{
			Text:    decision.DirectAnswer,
			Quality: 1,
			Results: results,
		}
	}

	succeeded := s.successOrder(decision, results)
	if len(succeeded) == 0 {
		s.logger.Warn("synthesis: every handler failed", "selected", decision.Selected)
		return domain.SynthesizedAnswer{Text: unableAnswer, Quality: 0.1, Results: results}
	}

	if text, err := s.merge(ctx, succeeded, results, req); err == nil {
		return domain.SynthesizedAnswer{Text: text, Quality: s.quality(decision, results, false), Results: results}
	} else {
		s.logger.Warn("synthesis: completer merge failed, using summaries", "error", err)
	}

	var parts []string
	for _, id := range succeeded {
		if summary := results[id].Payload.Summary(); summary != "" {
			parts = append(parts, summary)
		}
	}
	if len(parts) == 0 {
		s.logger.Warn("synthesis: no summary text from succeeded handlers", "selected", decision.Selected)
		return domain.SynthesizedAnswer{Text: unableAnswer, Quality: 0.1, Results: results}
	}
	return domain.SynthesizedAnswer{
		Text:    strings.Join(parts, "\n\n"),
		Quality: s.quality(decision, results, true),
		Results: results,
	}
}

// successOrder returns the ids of succeeded handlers ordered by declared
// priority, so fallback output reads primary-topic first.
func (s *Synthesizer) successOrder(decision domain.RoutingDecision, results map[string]domain.ExecutionResult) []string {
	var ids []string
	for _, id := range decision.Selected {
		if r, ok := results[id]; ok && r.Success && r.Payload != nil {
			ids = append(ids, id)
		}
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && s.priority[ids[j]] < s.priority[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

func (s *Synthesizer) merge(ctx context.Context, succeeded []string, results map[string]domain.ExecutionResult, req *domain.Request) (string, error) {
	reply, err := s.completer.Complete(ctx, s.buildPrompt(succeeded, results, req))
	if err != nil {
		return "", fmt.Errorf("completer: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty synthesis reply")
	}
	return reply, nil
}

func (s *Synthesizer) buildPrompt(succeeded []string, results map[string]domain.ExecutionResult, req *domain.Request) string {
	var b strings.Builder
	b.WriteString("You are an assistant for farmers. Combine the findings below into one ")
	b.WriteString("clear, practical answer. Reference the concrete numbers and names the ")
	b.WriteString("findings contain; do not invent data.\n")
	if req.Language != "" && req.Language != "en" {
		fmt.Fprintf(&b, "Answer in language code %q.\n", req.Language)
	}
	if len(req.Context.History) > 0 {
		b.WriteString("\nEarlier in this conversation:\n")
		for _, ex := range req.Context.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Query, truncate(ex.Answer, 200))
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Text)
	if req.Context.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", req.Context.Location)
	}
	b.WriteString("\nFindings:\n")
	for _, id := range succeeded {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", id, results[id].Payload.Summary())
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// quality scores the answer: full marks for a clean completer merge over all
// handlers, deductions for fallback routing, failed handlers and summary-only
// synthesis.
func (s *Synthesizer) quality(decision domain.RoutingDecision, results map[string]domain.ExecutionResult, summaryFallback bool) float64 {
	q := 1.0
	if decision.Fallback {
		q -= 0.2
	}
	if summaryFallback {
		q -= 0.3
	}
	for _, r := range results {
		if !r.Success {
			q -= 0.2
		}
	}
	if q < 0.1 {
		q = 0.1
	}
	return q
}
