package explain

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	calls   atomic.Int32
	respond func(prompt string) (string, error)
}

func (s *stubModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	return s.respond(prompt)
}

func candidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{Code: fmt.Sprintf("%06d", i), Score: 80, KeyFactors: []string{"ROE优秀 (22.0%)"}}
	}
	return out
}

func TestAnnotator_NilModelAlwaysRuleBased(t *testing.T) {
	a := New(nil)
	out := a.Annotate(context.Background(), candidates(3))
	require.Len(t, out, 3)
	for i, s := range out {
		assert.Equal(t, RuleBasedExplanation(candidates(3)[i]), s)
	}
}

func TestAnnotator_ParsesJSONArrayPerBatch(t *testing.T) {
	model := &stubModel{respond: func(prompt string) (string, error) {
		return `["第一条点评", "第二条点评"]`, nil
	}}
	a := New(model)
	out := a.Annotate(context.Background(), candidates(2))
	require.Len(t, out, 2)
	assert.Equal(t, "第一条点评", out[0])
	assert.Equal(t, "第二条点评", out[1])
}

func TestAnnotator_FallsBackOnUnparsableResponse(t *testing.T) {
	model := &stubModel{respond: func(prompt string) (string, error) {
		return "not json at all", nil
	}}
	a := New(model)
	cands := candidates(1)
	out := a.Annotate(context.Background(), cands)
	require.Len(t, out, 1)
	assert.Equal(t, RuleBasedExplanation(cands[0]), out[0])
}

func TestAnnotator_RespectsMaxCallsPerCycle(t *testing.T) {
	model := &stubModel{respond: func(prompt string) (string, error) {
		return `[]`, nil
	}}
	a := New(model)
	// 3 batches worth of candidates, but only maxCallsPerCycle batches
	// should ever reach the model.
	a.Annotate(context.Background(), candidates(batchSize*3))
	assert.Equal(t, int32(maxCallsPerCycle), model.calls.Load())
}

func TestAnnotator_TolerantOfProseWrappedJSON(t *testing.T) {
	model := &stubModel{respond: func(prompt string) (string, error) {
		return "Here you go:\n```json\n[\"仅一条\"]\n```", nil
	}}
	a := New(model)
	out := a.Annotate(context.Background(), candidates(1))
	require.Len(t, out, 1)
	assert.Equal(t, "仅一条", out[0])
}
