// Package knowledge loads the YAML catalogs the handlers consult: government
// scheme descriptions for the finance handler and commodity price ranges for
// market data validation.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"agribot/internal/domain"
)

// Scheme is one government program entry from the catalog file.
type Scheme struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"` // loan | insurance | subsidy | income_support
	Summary     string   `yaml:"summary"`
	Eligibility string   `yaml:"eligibility"`
	Keywords    []string `yaml:"keywords"`
}

type schemeCatalog struct {
	Schemes []Scheme `yaml:"schemes"`
}

// SchemeIndex is a keyword-scored retriever over the scheme catalog. It
// implements domain.Retriever; ranking is plain term overlap, good enough
// for a catalog of tens of entries.
type SchemeIndex struct {
	schemes []Scheme
	logger  *slog.Logger
}

// LoadSchemes reads the scheme catalog. A missing file yields an empty
// index, not an error: the finance handler then leans on the completer.
func LoadSchemes(path string, logger *slog.Logger) (*SchemeIndex, error) {
	idx := &SchemeIndex{logger: logger}
	if path == "" {
		return idx, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Warn("scheme catalog not found, finance retrieval disabled", "path", path)
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scheme catalog: %w", err)
	}

	var catalog schemeCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse scheme catalog: %w", err)
	}

	idx.schemes = catalog.Schemes
	logger.Info("loaded scheme catalog", "path", path, "schemes", len(idx.schemes))
	return idx, nil
}

func (idx *SchemeIndex) Len() int { return len(idx.schemes) }

// Search ranks schemes by keyword overlap with the query and returns up to
// topK scored snippets. Zero-score schemes are excluded.
func (idx *SchemeIndex) Search(ctx context.Context, query string, topK int) ([]domain.ScoredSnippet, error) {
	if topK <= 0 {
		topK = 3
	}
	terms := tokenize(query)
	if len(terms) == 0 || len(idx.schemes) == 0 {
		return nil, nil
	}

	type scored struct {
		scheme Scheme
		score  float64
	}
	var hits []scored
	for _, s := range idx.schemes {
		score := overlapScore(terms, s)
		if score > 0 {
			hits = append(hits, scored{scheme: s, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]domain.ScoredSnippet, len(hits))
	for i, h := range hits {
		out[i] = domain.ScoredSnippet{
			SchemeName: h.scheme.Name,
			Category:   h.scheme.Category,
			Text:       h.scheme.Summary + " Eligibility: " + h.scheme.Eligibility,
			Score:      h.score,
		}
	}
	return out, nil
}

func overlapScore(terms map[string]bool, s Scheme) float64 {
	score := 0.0
	for _, kw := range s.Keywords {
		if terms[strings.ToLower(kw)] {
			score += 2
		}
	}
	for term := range terms {
		if len(term) < 4 {
			continue
		}
		if strings.Contains(strings.ToLower(s.Name), term) {
			score += 1.5
		}
		if strings.Contains(strings.ToLower(s.Summary), term) {
			score++
		}
	}
	return score
}

func tokenize(s string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			terms[f] = true
		}
	}
	return terms
}
