// Package router turns an incoming request into a routing decision: which
// capability handlers should run, with what confidence, and why. The
// completer does the heavy lifting; a keyword table covers for it when it
// fails or talks nonsense.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agribot/internal/domain"
)

const greetingAnswer = "Hello! I can help you with weather forecasts, crop prices, " +
	"pest and disease problems, and government schemes or loans for farmers. " +
	"What would you like to know?"

const offTopicAnswer = "I specialize in farming topics: weather, crop prices, " +
	"pests and diseases, and agricultural finance. Please ask me something in those areas."

// Router classifies requests into handler selections.
type Router struct {
	completer   domain.Completer
	descriptors []domain.HandlerDescriptor
	known       map[string]bool
	logger      *slog.Logger
}

func New(completer domain.Completer, descriptors []domain.HandlerDescriptor, logger *slog.Logger) *Router {
	known := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		known[d.ID] = true
	}
	return &Router{
		completer:   completer,
		descriptors: descriptors,
		known:       known,
		logger:      logger,
	}
}

// Route produces the routing decision for req. It never returns an error:
// classification failures degrade to the keyword fallback, and pre-checks
// (greeting, off-topic) short-circuit with a direct answer.
func (r *Router) Route(ctx context.Context, req *domain.Request) domain.RoutingDecision {
	text := strings.TrimSpace(req.Text)

	// Image requests always involve the pest handler, whatever the caption
	// says. This is a fixed product rule, not an inference.
	if req.Modality.HasImage() {
		return r.imageDecision(req)
	}

	if isGreeting(text) {
		return domain.RoutingDecision{
			Confidence:   1,
			Rationale:    "greeting",
			DirectAnswer: greetingAnswer,
		}
	}
	if isOffTopic(text) {
		return domain.RoutingDecision{
			Confidence:   1,
			Rationale:    "off-topic request",
			DirectAnswer: offTopicAnswer,
		}
	}

	decision, err := r.classify(ctx, req)
	if err != nil {
		r.logger.Warn("router: classification failed, using keyword fallback", "error", err)
		return r.keywordDecision(text)
	}
	return decision
}

func (r *Router) imageDecision(req *domain.Request) domain.RoutingDecision {
	selected := []string{domain.HandlerPest}
	rationale := "image attached, pest diagnosis"

	// The caption can still pull in a specialist alongside pest, but never
	// the general handler.
	if text := strings.TrimSpace(req.Text); text != "" {
		if extra, matches := classifyByKeywords(text); matches > 0 && extra != domain.HandlerPest && extra != domain.HandlerGeneral {
			selected = append(selected, extra)
			rationale = fmt.Sprintf("image attached, pest diagnosis with %s context", extra)
		}
	}
	return domain.RoutingDecision{
		Selected:   selected,
		Confidence: 0.9,
		Rationale:  rationale,
	}
}

func (r *Router) classify(ctx context.Context, req *domain.Request) (domain.RoutingDecision, error) {
	reply, err := r.completer.Complete(ctx, r.buildPrompt(req))
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("completer: %w", err)
	}

	parsed, err := parseRoutingReply(reply)
	if err != nil {
		return domain.RoutingDecision{}, err
	}

	selected := r.validateSelection(parsed)
	if len(selected) == 0 {
		return domain.RoutingDecision{}, fmt.Errorf("routing reply selected no known handler")
	}

	return domain.RoutingDecision{
		Selected:   selected,
		Confidence: parsed.Confidence,
		Rationale:  parsed.Reasoning,
	}, nil
}

// validateSelection drops unknown ids, deduplicates, and enforces the rule
// that specialists are never combined with the general handler.
func (r *Router) validateSelection(reply routingReply) []string {
	var selected []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] || !r.known[id] {
			return
		}
		seen[id] = true
		selected = append(selected, id)
	}

	add(reply.Primary)
	for _, id := range reply.Secondary {
		add(id)
	}

	if len(selected) > 1 && seen[domain.HandlerGeneral] {
		filtered := selected[:0]
		for _, id := range selected {
			if id != domain.HandlerGeneral {
				filtered = append(filtered, id)
			}
		}
		selected = filtered
	}
	return selected
}

func (r *Router) keywordDecision(text string) domain.RoutingDecision {
	handler, matches := classifyByKeywords(text)
	confidence := 0.4
	if matches > 1 {
		confidence = 0.6
	}
	return domain.RoutingDecision{
		Selected:   []string{handler},
		Confidence: confidence,
		Rationale:  fmt.Sprintf("keyword fallback (%d matches)", matches),
		Fallback:   true,
	}
}

func (r *Router) buildPrompt(req *domain.Request) string {
	var b strings.Builder
	b.WriteString("You route a farmer's question to specialized handlers.\n")
	b.WriteString("Available handlers:\n")
	for _, d := range r.descriptors {
		fmt.Fprintf(&b, "- %s: %s\n", d.ID, strings.Join(d.Keywords, ", "))
	}
	b.WriteString("\nRules: choose one primary handler; add secondary handlers only when the ")
	b.WriteString("question genuinely spans topics; never combine general with a specialist.\n")
	b.WriteString("Respond with only a JSON object:\n")
	b.WriteString(`{"primary_handler":"...","secondary_handlers":[],"confidence":0.0,"reasoning":"..."}`)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(req.Text)
	if req.Context.Location != "" {
		b.WriteString("\nLocation: " + req.Context.Location)
	}
	if req.Context.Crop != "" {
		b.WriteString("\nCrop: " + req.Context.Crop)
	}
	return b.String()
}
