package domain

import "context"

// Retriever is the document-retrieval capability used by the finance handler.
// It is a black box returning ranked text snippets with scores.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]ScoredSnippet, error)
}

// ScoredSnippet is one ranked retrieval result.
type ScoredSnippet struct {
	SchemeName string
	Category   string
	Text       string
	Score      float64
}

// Classification is one label with confidence from an image classifier.
type Classification struct {
	Label      string
	Confidence float64
}

// Classifier is the ML inference capability used by the pest handler. Treated
// as a black box returning a ranked list of classifications.
type Classifier interface {
	Classify(ctx context.Context, imageRef string) ([]Classification, error)
}
