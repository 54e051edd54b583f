package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agribot/internal/domain"
)

// PestHandler diagnoses crop pests and diseases. With an image it runs the
// classifier and asks the completer for treatment advice on the top label;
// text-only questions go straight to the completer.
type PestHandler struct {
	classifier domain.Classifier
	completer  domain.Completer
	logger     *slog.Logger
}

type PestHandlerConfig struct {
	Classifier domain.Classifier // optional
	Completer  domain.Completer
	Logger     *slog.Logger
}

func NewPestHandler(cfg PestHandlerConfig) *PestHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PestHandler{
		classifier: cfg.Classifier,
		completer:  cfg.Completer,
		logger:     cfg.Logger,
	}
}

func (h *PestHandler) Descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		ID:       domain.HandlerPest,
		Keywords: []string{"pest", "disease", "insect", "fungus", "leaf damage", "crop infection"},
		Priority: 2,
	}
}

func (h *PestHandler) Execute(ctx context.Context, req *domain.Request) (domain.HandlerPayload, error) {
	var payload domain.PestPayload

	if req.Modality.HasImage() && req.ImageRef != "" {
		if h.classifier == nil {
			return nil, fmt.Errorf("image diagnosis requires a classifier")
		}
		labels, err := h.classifier.Classify(ctx, req.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("classify image: %w", err)
		}
		if len(labels) > 0 {
			payload.Label = labels[0].Label
			payload.Confidence = labels[0].Confidence
			if len(labels) > 1 {
				payload.Alternatives = labels[1:]
			}
		}
	}

	advisory, err := h.advisory(ctx, req, payload)
	if err != nil && payload.Label == "" {
		return nil, err
	}
	payload.Advisory = advisory
	return payload, nil
}

func (h *PestHandler) advisory(ctx context.Context, req *domain.Request, p domain.PestPayload) (string, error) {
	if h.completer == nil {
		return "", fmt.Errorf("no completer configured")
	}

	var b strings.Builder
	if p.Label != "" {
		fmt.Fprintf(&b, "An image classifier identified %q (%.0f%% confidence) on a farmer's crop.\n",
			p.Label, p.Confidence*100)
	}
	if text := strings.TrimSpace(req.Text); text != "" {
		b.WriteString("The farmer says: " + text + "\n")
	}
	if req.Context.Crop != "" {
		b.WriteString("Crop: " + req.Context.Crop + "\n")
	}
	b.WriteString("Give a short diagnosis and treatment plan: organic options first, then chemical ones with dosage, and prevention tips.")

	reply, err := h.completer.Complete(ctx, b.String())
	if err != nil {
		h.logger.Warn("pest advisory failed", "error", err)
		return "", fmt.Errorf("pest advisory: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// HTTPClassifier calls an external inference service for image diagnosis.
// The service is a black box returning ranked labels.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, imageRef string) ([]domain.Classification, error) {
	payload, err := json.Marshal(map[string]string{"image_ref": imageRef})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %d", resp.StatusCode)
	}

	var out []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}

	labels := make([]domain.Classification, len(out))
	for i, l := range out {
		labels[i] = domain.Classification{Label: l.Label, Confidence: l.Confidence}
	}
	return labels, nil
}
