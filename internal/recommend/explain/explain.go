// Package explain runs a best-effort LLM pass over a recommendation
// result list that never reorders or drops a row, and always falls
// back to a deterministic rule-based sentence when the model is
// unavailable or its output doesn't parse.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// batchSize and maxCallsPerCycle are the rate-control knobs: at most
// K=2 LLM calls per annotation cycle, each covering up to 10
// candidates.
const (
	batchSize        = 10
	maxCallsPerCycle = 2
)

// Candidate is the minimal shape the annotator needs from a
// recommendation result; it is decoupled from internal/recommend.Result
// so this package stays free of a dependency on its parent.
type Candidate struct {
	Code       string
	Score      float64
	KeyFactors []string
}

// Model generates text from a prompt. genai.Client.Models satisfies a
// narrow subset of this through the adapter in client.go; tests supply
// a fake.
type Model interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Annotator runs the batched, rate-controlled explanation pass.
type Annotator struct {
	model Model
}

// New builds an Annotator over an LLM-backed Model. model may be nil,
// in which case every candidate gets the rule-based fallback.
func New(model Model) *Annotator {
	return &Annotator{model: model}
}

// Annotate returns exactly len(candidates) explanation strings, in the
// same order. It never errors: any per-batch failure degrades that
// batch to rule-based sentences.
func (a *Annotator) Annotate(ctx context.Context, candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = RuleBasedExplanation(c)
	}
	if a == nil || a.model == nil || len(candidates) == 0 {
		return out
	}

	calls := 0
	for start := 0; start < len(candidates) && calls < maxCallsPerCycle; start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		calls++

		texts, err := a.annotateBatch(ctx, batch)
		if err != nil {
			log.Warn().Err(err).Int("batch_start", start).Msg("explanation annotator batch failed, using rule-based fallback")
			continue
		}
		for i, t := range texts {
			if i < len(batch) && strings.TrimSpace(t) != "" {
				out[start+i] = t
			}
		}
	}
	return out
}

func (a *Annotator) annotateBatch(ctx context.Context, batch []Candidate) ([]string, error) {
	prompt := buildBatchPrompt(batch)
	raw, err := a.model.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return parseJSONArray(raw, len(batch))
}

func buildBatchPrompt(batch []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are writing one-sentence Chinese investment commentary for each candidate below. ")
	sb.WriteString("Return a JSON array of exactly ")
	fmt.Fprintf(&sb, "%d", len(batch))
	sb.WriteString(" short strings, one per candidate, in the same order, and nothing else.\n\n")
	for i, c := range batch {
		fmt.Fprintf(&sb, "%d. code=%s score=%.1f factors=%s\n", i+1, c.Code, c.Score, strings.Join(c.KeyFactors, "; "))
	}
	return sb.String()
}

// parseJSONArray extracts a JSON array of strings from raw, tolerating
// a model wrapping the array in prose or a code fence.
func parseJSONArray(raw string, want int) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var out []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("parse JSON array: %w", err)
	}
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

// RuleBasedExplanation builds the deterministic fallback sentence from
// a candidate's key-factor tags.
func RuleBasedExplanation(c Candidate) string {
	if len(c.KeyFactors) == 0 {
		return fmt.Sprintf("%s 综合评分 %.1f", c.Code, c.Score)
	}
	return strings.Join(c.KeyFactors, "; ")
}
