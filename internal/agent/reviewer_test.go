package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"godra/internal/client"
)

// stubClient scripts completion responses. Each queue is consumed in
// order; the last element repeats so long-running loops stay scripted.
type stubClient struct {
	completions   []string
	structured    []string
	completeErr   error
	structuredErr error

	completeCalls   int
	structuredCalls int
	lastPrompt      string
	lastSystem      string
	lastJudgePrompt string
}

var _ client.Client = (*stubClient)(nil)

func (s *stubClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	s.completeCalls++
	s.lastPrompt = prompt
	s.lastSystem = systemPrompt
	if s.completeErr != nil {
		return "", s.completeErr
	}
	if len(s.completions) == 0 {
		return "", fmt.Errorf("no scripted completion")
	}
	next := s.completions[0]
	if len(s.completions) > 1 {
		s.completions = s.completions[1:]
	}
	return next, nil
}

func (s *stubClient) CompleteStructured(ctx context.Context, prompt, systemPrompt string, schema json.RawMessage, out any) error {
	s.structuredCalls++
	s.lastJudgePrompt = prompt
	if s.structuredErr != nil {
		return s.structuredErr
	}
	if len(s.structured) == 0 {
		return &client.StructuredOutputError{Err: fmt.Errorf("no scripted response")}
	}
	next := s.structured[0]
	if len(s.structured) > 1 {
		s.structured = s.structured[1:]
	}
	if err := json.Unmarshal([]byte(next), out); err != nil {
		return &client.StructuredOutputError{Raw: next, Err: err}
	}
	return nil
}

func (s *stubClient) Model() string                  { return "stub" }
func (s *stubClient) WithModel(string) client.Client { return s }
func (s *stubClient) Health(context.Context) error   { return nil }

func TestReviewErrorDominatesPendingPlan(t *testing.T) {
	r := NewReviewer(nil, 0)
	state := NewSharedState("q")
	state.LastResult = &ExecutionResult{Status: StatusError, Tool: "foo_bar", Message: "tool not found: foo_bar"}

	// A failed call forces revision even with calls still queued.
	state.Plan.Replace([]PlannedCall{{Tool: "list-functions"}})
	dec := r.Review(context.Background(), state)
	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)
	assert.Contains(t, dec.Reason, "tool not found: foo_bar")

	// Same with nothing queued.
	state.Plan.Clear()
	dec = r.Review(context.Background(), state)
	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)
}

func TestReviewContinuesThroughPendingPlan(t *testing.T) {
	// Rules on error and pending work never consult the model.
	r := NewReviewer(nil, 0)
	state := NewSharedState("q")
	state.LastResult = &ExecutionResult{Status: StatusSuccess, Tool: "list-functions", Payload: "main"}
	state.Plan.Replace([]PlannedCall{{Tool: "decompile-by-name"}})

	dec := r.Review(context.Background(), state)

	assert.Equal(t, DirectiveContinue, dec.Directive)
	assert.False(t, dec.Escalate)
}

func TestReviewJudgesEmptyPlan(t *testing.T) {
	c := &stubClient{structured: []string{`{"directive": "FINAL_ANSWER", "reason": "the listing answers the query", "escalate": true}`}}
	r := NewReviewer(c, 0)
	state := NewSharedState("List all functions")
	state.LastResult = &ExecutionResult{Status: StatusSuccess, Tool: "list-functions", Payload: "main"}
	state.CurrentAnalysis = "The following functions were found:\nmain"

	dec := r.Review(context.Background(), state)

	assert.Equal(t, DirectiveFinalAnswer, dec.Directive)
	assert.True(t, dec.Escalate)
	assert.Equal(t, "the listing answers the query", dec.Reason)
	assert.Equal(t, 1, c.structuredCalls)
	assert.Contains(t, c.lastJudgePrompt, "List all functions")
	assert.Contains(t, c.lastJudgePrompt, "The following functions were found:")
}

func TestReviewExitLoopVerdict(t *testing.T) {
	c := &stubClient{structured: []string{`{"directive": "EXIT_LOOP", "reason": "the available tools cannot answer this", "escalate": true}`}}
	r := NewReviewer(c, 0)
	state := NewSharedState("make me a sandwich")
	state.LastResult = &ExecutionResult{Status: StatusNoPlan, Message: "no tool calls in plan"}

	dec := r.Review(context.Background(), state)

	assert.Equal(t, DirectiveExitLoop, dec.Directive)
	assert.True(t, dec.Escalate)
}

func TestReviewEscalateFollowsDirective(t *testing.T) {
	// The model's escalate field is recomputed from the directive.
	c := &stubClient{structured: []string{`{"directive": "REVISE_PLAN", "reason": "dig further", "escalate": true}`}}
	r := NewReviewer(c, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)

	c = &stubClient{structured: []string{`{"directive": "final_answer", "reason": "done", "escalate": false}`}}
	r = NewReviewer(c, 0)

	dec = r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveFinalAnswer, dec.Directive)
	assert.True(t, dec.Escalate)
}

func TestReviewContinueVerdictWithEmptyPlanReadsAsRevise(t *testing.T) {
	c := &stubClient{structured: []string{`{"directive": "CONTINUE", "reason": "keep going", "escalate": false}`}}
	r := NewReviewer(c, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)
}

func TestReviewMalformedVerdictDegradesToRevise(t *testing.T) {
	c := &stubClient{structuredErr: &client.StructuredOutputError{Raw: "not json", Err: fmt.Errorf("decode failed")}}
	r := NewReviewer(c, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)
	assert.Contains(t, dec.Reason, "decision schema")
}

func TestReviewUnknownDirectiveDegradesToRevise(t *testing.T) {
	c := &stubClient{structured: []string{`{"directive": "PONDER", "reason": "hmm", "escalate": true}`}}
	r := NewReviewer(c, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.False(t, dec.Escalate)
}

func TestReviewTransportFailureDegradesToRevise(t *testing.T) {
	c := &stubClient{structuredErr: fmt.Errorf("connection refused")}
	r := NewReviewer(c, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveRevisePlan, dec.Directive)
	assert.Contains(t, dec.Reason, "connection refused")
}

func TestReviewWithoutClientExits(t *testing.T) {
	r := NewReviewer(nil, 0)

	dec := r.Review(context.Background(), NewSharedState("q"))

	assert.Equal(t, DirectiveExitLoop, dec.Directive)
	assert.True(t, dec.Escalate)
}

func TestDirectiveEscalates(t *testing.T) {
	assert.False(t, DirectiveContinue.Escalates())
	assert.False(t, DirectiveRevisePlan.Escalates())
	assert.True(t, DirectiveFinalAnswer.Escalates())
	assert.True(t, DirectiveExitLoop.Escalates())
}
