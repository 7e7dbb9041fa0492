package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godra/internal/cag"
	"godra/internal/config"
)

// scriptedPlanner hands out plans in order, repeating the last one.
type scriptedPlanner struct {
	plans [][]PlannedCall
	err   error
	calls int
}

func (s *scriptedPlanner) Plan(ctx context.Context, state *SharedState, contextBlock string) ([]PlannedCall, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.plans) == 0 {
		return nil, nil
	}
	next := s.plans[0]
	if len(s.plans) > 1 {
		s.plans = s.plans[1:]
	}
	return next, nil
}

// continueReviewer never escalates.
type continueReviewer struct{ calls int }

func (r *continueReviewer) Review(ctx context.Context, state *SharedState) Decision {
	r.calls++
	return newDecision(DirectiveContinue, "keep going")
}

func TestRunListAllFunctions(t *testing.T) {
	c := &stubClient{
		completions: []string{`[{"tool": "list-functions", "parameters": {}}]`},
		structured:  []string{`{"directive": "FINAL_ANSWER", "reason": "the listing answers the query", "escalate": true}`},
	}
	ctrl := NewController(c, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})

	out := ctrl.Run(context.Background(), "List all functions")

	assert.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, 1, out.Iterations)
	assert.False(t, out.Canceled)
	assert.Equal(t, "The following functions were found:\nmain\ninitialize\nprocess_data\ncleanup", out.Analysis)
	assert.Equal(t, out.Analysis, out.Report)
	assert.Equal(t, 1, c.completeCalls)
	assert.Equal(t, 1, c.structuredCalls)
}

func TestRunRecoversFromUnknownTool(t *testing.T) {
	c := &stubClient{
		completions: []string{
			`[{"tool": "foo_bar", "parameters": {}}]`,
			`[{"tool": "list-functions", "parameters": {}}]`,
		},
		structured: []string{`{"directive": "FINAL_ANSWER", "reason": "answered on the second try", "escalate": true}`},
	}
	ctrl := NewController(c, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})

	out := ctrl.Run(context.Background(), "List all functions")

	assert.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, 2, out.Iterations)
	assert.Contains(t, out.Analysis, "Tool foo_bar failed: tool not found: foo_bar")
	assert.Contains(t, out.Analysis, "The following functions were found:")
	// One plan, one revision; the failed pass never reaches the judge.
	assert.Equal(t, 2, c.completeCalls)
	assert.Equal(t, 1, c.structuredCalls)
}

func TestRunTerminatesAtIterationCap(t *testing.T) {
	planner := &scriptedPlanner{plans: [][]PlannedCall{{{Tool: "list-functions", Parameters: map[string]any{}}}}}
	reviewer := &continueReviewer{}
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})
	ctrl.planner = planner
	ctrl.reviewer = reviewer

	out := ctrl.Run(context.Background(), "keep poking at the binary")

	assert.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, "iteration budget exhausted", out.Reason)
	assert.Equal(t, 10, out.Iterations)
	assert.Equal(t, 10, planner.calls)
	assert.Equal(t, 10, reviewer.calls)
	assert.NotEmpty(t, out.Analysis)
	assert.False(t, out.Canceled)
}

func TestRunDefaultsIterationCap(t *testing.T) {
	planner := &scriptedPlanner{plans: [][]PlannedCall{{{Tool: "get-current-function"}}}}
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{})
	ctrl.planner = planner
	ctrl.reviewer = &continueReviewer{}

	out := ctrl.Run(context.Background(), "q")

	assert.Equal(t, 10, out.Iterations)
}

func TestRunCancelSentinelQuery(t *testing.T) {
	planner := &scriptedPlanner{}
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})
	ctrl.planner = planner

	out := ctrl.Run(context.Background(), "EXIT LOOP")

	assert.True(t, out.Canceled)
	assert.Equal(t, DirectiveExitLoop, out.Directive)
	assert.Equal(t, 0, out.Iterations)
	assert.Equal(t, 0, planner.calls)
}

func TestRunHonorsCancelRequest(t *testing.T) {
	planner := &scriptedPlanner{}
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})
	ctrl.planner = planner
	ctrl.Cancel()

	out := ctrl.Run(context.Background(), "List all functions")

	assert.True(t, out.Canceled)
	assert.Equal(t, 0, out.Iterations)
	assert.Equal(t, 0, planner.calls)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})
	ctrl.planner = &scriptedPlanner{}

	out := ctrl.Run(ctx, "List all functions")

	assert.True(t, out.Canceled)
	assert.Equal(t, "context canceled", out.Reason)
}

func TestRunCapturesPlanningFailure(t *testing.T) {
	planner := &scriptedPlanner{err: fmt.Errorf("model unavailable")}
	ctrl := NewController(nil, mockRegistry(), nil, config.LoopConfig{MaxIterations: 2})
	ctrl.planner = planner

	out := ctrl.Run(context.Background(), "List all functions")

	// The failure is captured as a pass result and the cap ends the run.
	assert.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, "iteration budget exhausted", out.Reason)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 2, planner.calls)
	assert.Contains(t, out.Analysis, "planning failed: model unavailable")
}

func TestRunEmptyPlanExitsThroughJudgment(t *testing.T) {
	c := &stubClient{
		completions: []string{`[]`},
		structured:  []string{`{"directive": "EXIT_LOOP", "reason": "the available tools cannot answer this", "escalate": true}`},
	}
	ctrl := NewController(c, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})

	out := ctrl.Run(context.Background(), "what is the meaning of life?")

	assert.Equal(t, DirectiveExitLoop, out.Directive)
	assert.False(t, out.Canceled)
	assert.Equal(t, 1, out.Iterations)
	assert.Contains(t, out.Analysis, "No tool was executed")
}

func TestRunRecordsIntoSessionCache(t *testing.T) {
	c := &stubClient{
		completions: []string{`[
			{"tool": "decompile-by-name", "parameters": {"name": "main"}},
			{"tool": "rename-by-address", "parameters": {"address": "00401100", "new_name": "initialize_config"}}
		]`},
		structured: []string{`{"directive": "FINAL_ANSWER", "reason": "done", "escalate": true}`},
	}
	manager := cag.NewManager(nil, cag.NewSessionCache(""), nil, config.BudgetConfig{TokenLimit: 2000, MinSessionTokens: 200})
	ctrl := NewController(c, mockRegistry(), manager, config.LoopConfig{MaxIterations: 10})

	out := ctrl.Run(context.Background(), "rename the initializer")

	require.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, 2, out.Iterations)

	counts := manager.Session().Counts()
	assert.Equal(t, 2, counts[cag.KindContextItem]) // user turn and final answer
	assert.Equal(t, 1, counts[cag.KindDecompiledFunction])
	assert.Equal(t, 1, counts[cag.KindRenamedEntity])
	assert.Equal(t, 1, counts[cag.KindAnalysisResult])

	fn, ok := manager.Session().FunctionByName("main")
	require.True(t, ok)
	assert.Contains(t, fn.Code, "void main(void)")
}

func TestRunAnswersFromSimilarAnalysis(t *testing.T) {
	session := cag.NewSessionCache("")
	session.AddAnalysisResult("list all functions in the binary", "", "The following functions were found:\nmain")
	manager := cag.NewManager(nil, session, nil, config.BudgetConfig{})

	planner := &scriptedPlanner{}
	ctrl := NewController(nil, mockRegistry(), manager, config.LoopConfig{MaxIterations: 10})
	ctrl.planner = planner

	out := ctrl.Run(context.Background(), "list all functions in the binary")

	assert.Equal(t, DirectiveFinalAnswer, out.Directive)
	assert.Equal(t, 0, out.Iterations)
	assert.Equal(t, 0, planner.calls)
	assert.Contains(t, out.Report, "main")
}

func TestRunSummarizeProducesReport(t *testing.T) {
	c := &stubClient{
		completions: []string{
			`[{"tool": "list-functions", "parameters": {}}]`,
			"The binary contains four functions; main is the entry point.",
		},
		structured: []string{`{"directive": "FINAL_ANSWER", "reason": "done", "escalate": true}`},
	}
	ctrl := NewController(c, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10, Summarize: true})

	out := ctrl.Run(context.Background(), "List all functions")

	assert.Equal(t, "The binary contains four functions; main is the entry point.", out.Report)
	assert.True(t, strings.HasPrefix(out.Analysis, "The following functions were found:"))
	assert.Equal(t, 2, c.completeCalls) // plan, then report
}

func TestRunSummarizeUsesSummaryClient(t *testing.T) {
	planning := &stubClient{
		completions: []string{`[{"tool": "list-functions", "parameters": {}}]`},
		structured:  []string{`{"directive": "FINAL_ANSWER", "reason": "done", "escalate": true}`},
	}
	reporting := &stubClient{
		completions: []string{"Report written by the summary model."},
	}
	ctrl := NewController(planning, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10, Summarize: true})
	ctrl.UseSummaryClient(reporting)

	out := ctrl.Run(context.Background(), "List all functions")

	assert.Equal(t, "Report written by the summary model.", out.Report)
	assert.Equal(t, 1, planning.completeCalls) // planning only
	assert.Equal(t, 1, reporting.completeCalls)
}

func TestRunReportsPhases(t *testing.T) {
	c := &stubClient{
		completions: []string{`[{"tool": "list-functions", "parameters": {}}]`},
		structured:  []string{`{"directive": "FINAL_ANSWER", "reason": "done", "escalate": true}`},
	}
	ctrl := NewController(c, mockRegistry(), nil, config.LoopConfig{MaxIterations: 10})

	var phases []Phase
	ctrl.OnPhase(func(p Phase, iteration int) {
		phases = append(phases, p)
		assert.Equal(t, 0, iteration)
	})

	ctrl.Run(context.Background(), "List all functions")

	assert.Equal(t, []Phase{PhasePlanning, PhaseExecuting, PhaseAnalyzing, PhaseReviewing}, phases)
}

func TestFuncNameFromCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"void main(void)\n{\n  return;\n}", "main"},
		{"undefined8 __fastcall FUN_00401000(int param_1)\n{\n}", "FUN_00401000"},
		{"char *process_data(char *src)\n{\n}", "process_data"},
		{"// decompiler emitted nothing", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, funcNameFromCode(tt.code), tt.code)
	}
}
