package recommend

import (
	"context"

	"github.com/eastmoney-sub000/factord/internal/recommend/explain"
)

// ExplainAnnotator adapts an *explain.Annotator to the engine's
// Annotator interface, translating between Result and the annotator's
// decoupled Candidate shape.
type ExplainAnnotator struct {
	annotator *explain.Annotator
}

// NewExplainAnnotator wraps ann for use as an Engine's Annotator.
func NewExplainAnnotator(ann *explain.Annotator) *ExplainAnnotator {
	return &ExplainAnnotator{annotator: ann}
}

// Explain implements Annotator.
func (e *ExplainAnnotator) Explain(ctx context.Context, results []Result) []string {
	candidates := make([]explain.Candidate, len(results))
	for i, r := range results {
		candidates[i] = explain.Candidate{Code: r.Code, Score: r.Score, KeyFactors: r.KeyFactors}
	}
	return e.annotator.Annotate(ctx, candidates)
}
