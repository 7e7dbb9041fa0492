package agent

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"godra/internal/cag"
	"godra/internal/client"
	"godra/internal/config"
	"godra/internal/logging"
	"godra/internal/tools"
)

// CancelQuery is the sentinel a frontend writes into the user query to
// stop a session. The controller checks for it before every planning
// phase; there is no other mid-flight cancellation path besides the
// context.
const CancelQuery = "EXIT LOOP"

const defaultMaxIterations = 10

// Phase labels one step of a pass, reported to the progress callback.
type Phase string

const (
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseAnalyzing Phase = "ANALYZING"
	PhaseReviewing Phase = "REVIEWING"
)

// The phase seams the controller drives. Concrete implementations live
// in this package.
type planPhase interface {
	Plan(ctx context.Context, state *SharedState, contextBlock string) ([]PlannedCall, error)
}

type executePhase interface {
	Execute(ctx context.Context, plan *PlanStore) ExecutionResult
}

type reviewPhase interface {
	Review(ctx context.Context, state *SharedState) Decision
}

// Controller drives one session's planning loop. Construct one per
// session: it owns the shared state exclusively and nothing in it may be
// shared across sessions.
type Controller struct {
	planner  planPhase
	executor executePhase
	analyzer Analyzer
	reviewer reviewPhase
	client   client.Client
	summary  client.Client
	cache    *cag.Manager
	cfg      config.LoopConfig

	canceled atomic.Bool
	onPhase  func(phase Phase, iteration int)
}

// NewController wires a session loop from its parts. cache may be nil to
// run without context caching.
func NewController(c client.Client, registry *tools.Registry, cache *cag.Manager, cfg config.LoopConfig) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	return &Controller{
		planner:  NewPlanner(c, registry, cfg.PhaseTimeout),
		executor: NewExecutor(registry, cfg.PhaseTimeout),
		reviewer: NewReviewer(c, cfg.PhaseTimeout),
		client:   c,
		cache:    cache,
		cfg:      cfg,
	}
}

// OnPhase registers a progress callback invoked at the start of each
// phase with the current iteration count.
func (c *Controller) OnPhase(fn func(phase Phase, iteration int)) {
	c.onPhase = fn
}

// UseSummaryClient routes the report pass through a separate client,
// typically a stronger model than the one planning tool calls.
func (c *Controller) UseSummaryClient(sc client.Client) {
	c.summary = sc
}

// Cancel requests cooperative cancellation. The loop honors it before
// its next planning phase; safe to call from another goroutine.
func (c *Controller) Cancel() {
	c.canceled.Store(true)
}

// Outcome is what a session run hands back to the frontend.
type Outcome struct {
	Report     string    // operator-facing answer
	Analysis   string    // raw accumulated findings
	Directive  Directive // FINAL_ANSWER or EXIT_LOOP
	Reason     string
	Iterations int
	Canceled   bool
}

// Run executes the loop for one query until a decision escalates, the
// iteration budget runs out, or the session is canceled. Recoverable
// failures never surface here: they are folded into results and
// decisions, and the outcome always carries whatever analysis has
// accumulated. Each full pass through the four phases increments the
// iteration count by exactly one.
func (c *Controller) Run(ctx context.Context, query string) *Outcome {
	state := NewSharedState(query)
	logging.Info("session started", "query", head(query, 120), "max_iterations", c.cfg.MaxIterations)

	if c.cache != nil {
		if prior, ok := c.cache.FindSimilarAnalysis(query); ok {
			logging.Info("answering from cached analysis")
			return &Outcome{
				Report:    prior,
				Analysis:  prior,
				Directive: DirectiveFinalAnswer,
				Reason:    "a previous analysis already answers this query",
			}
		}
		c.cache.RecordExchange("user", query)
	}

	lastContext := ""
	needPlan := true
	for {
		if c.canceled.Load() || isCancelQuery(state.UserQuery) {
			logging.Info("session canceled", "iteration", state.Iteration)
			return c.exit(state, "canceled before planning")
		}
		if ctx.Err() != nil {
			logging.Info("session context done", "iteration", state.Iteration, "error", ctx.Err())
			return c.exit(state, "context canceled")
		}
		if state.Iteration >= c.cfg.MaxIterations {
			logging.Warn("iteration budget exhausted, forcing final answer", "iterations", state.Iteration)
			return c.finish(ctx, state, lastContext, newDecision(DirectiveFinalAnswer, "iteration budget exhausted"))
		}

		planned := true
		if needPlan {
			c.phase(PhasePlanning, state.Iteration)
			if c.cache != nil {
				lastContext = c.cache.BuildContext(ctx, state.UserQuery, cag.PhasePlanning, 0)
			}
			calls, err := c.planner.Plan(ctx, state, lastContext)
			if err != nil {
				// Captured as this pass's result; the loop never raises.
				logging.Warn("planning failed", "iteration", state.Iteration, "error", err)
				state.LastResult = &ExecutionResult{Status: StatusError, Message: "planning failed: " + err.Error()}
				planned = false
			} else {
				state.Plan.Replace(calls)
			}
		}

		if planned {
			c.phase(PhaseExecuting, state.Iteration)
			result := c.executor.Execute(ctx, state.Plan)
			state.LastResult = &result
			c.record(&result)
		}

		c.phase(PhaseAnalyzing, state.Iteration)
		state.CurrentAnalysis = c.analyzer.Analyze(state.UserQuery, state.LastResult, state.CurrentAnalysis)

		c.phase(PhaseReviewing, state.Iteration)
		decision := c.reviewer.Review(ctx, state)
		state.Iteration++
		logging.Debug("pass reviewed",
			"iteration", state.Iteration,
			"directive", decision.Directive,
			"pending_calls", state.Plan.Len(),
			"reason", decision.Reason)

		if decision.Escalate {
			return c.finish(ctx, state, lastContext, decision)
		}
		needPlan = decision.Directive == DirectiveRevisePlan || state.Plan.Len() == 0
	}
}

func (c *Controller) phase(p Phase, iteration int) {
	if c.onPhase != nil {
		c.onPhase(p, iteration)
	}
}

// exit ends a canceled session with whatever analysis exists.
func (c *Controller) exit(state *SharedState, reason string) *Outcome {
	return &Outcome{
		Report:     state.CurrentAnalysis,
		Analysis:   state.CurrentAnalysis,
		Directive:  DirectiveExitLoop,
		Reason:     reason,
		Iterations: state.Iteration,
		Canceled:   true,
	}
}

// finish produces the outcome for an escalating decision: a report for
// FINAL_ANSWER (optionally rewritten by the report pass), the raw
// analysis for EXIT_LOOP.
func (c *Controller) finish(ctx context.Context, state *SharedState, usedContext string, decision Decision) *Outcome {
	out := &Outcome{
		Report:     state.CurrentAnalysis,
		Analysis:   state.CurrentAnalysis,
		Directive:  decision.Directive,
		Reason:     decision.Reason,
		Iterations: state.Iteration,
	}

	if decision.Directive == DirectiveFinalAnswer {
		if report := c.summarize(ctx, state); report != "" {
			out.Report = report
		}
		if c.cache != nil {
			c.cache.UpdateFromAnalysis(state.UserQuery, usedContext, state.CurrentAnalysis)
			c.cache.RecordExchange("assistant", out.Report)
			if err := c.cache.SaveSession(); err != nil {
				logging.Warn("session save failed", "error", err)
			}
		}
	}

	logging.Info("session finished",
		"directive", decision.Directive,
		"iterations", state.Iteration,
		"analysis_tokens", cag.EstimateTokens(state.CurrentAnalysis))
	return out
}

// summarize runs the optional report pass. Any failure falls back to the
// raw analysis.
func (c *Controller) summarize(ctx context.Context, state *SharedState) string {
	llm := c.client
	if c.summary != nil {
		llm = c.summary
	}
	if !c.cfg.Summarize || llm == nil || strings.TrimSpace(state.CurrentAnalysis) == "" {
		return ""
	}

	callCtx := ctx
	if c.cfg.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.PhaseTimeout)
		defer cancel()
	}

	report, err := llm.Complete(callCtx, buildReportPrompt(state.UserQuery, state.CurrentAnalysis), reportSystemPrompt)
	if err != nil {
		logging.Warn("report pass failed, returning raw analysis", "error", err)
		return ""
	}
	return strings.TrimSpace(report)
}

// record mirrors successful tool effects into the session cache so later
// prompts can reference them.
func (c *Controller) record(r *ExecutionResult) {
	if c.cache == nil || r.Status != StatusSuccess {
		return
	}
	switch r.Tool {
	case toolDecompile:
		name, _ := tools.GetString(r.Params, "name")
		c.cache.UpdateFromDecompile(c.addressFor(name), name, r.Payload)
	case toolDecompileByAddress:
		address, _ := tools.GetString(r.Params, "address")
		c.cache.UpdateFromDecompile(address, c.nameFor(address, r.Payload), r.Payload)
	case toolRename:
		oldName, _ := tools.GetString(r.Params, "old_name")
		newName, _ := tools.GetString(r.Params, "new_name")
		c.cache.UpdateFromRename(oldName, newName)
	case toolRenameByAddress:
		address, _ := tools.GetString(r.Params, "address")
		newName, _ := tools.GetString(r.Params, "new_name")
		c.cache.UpdateFromRename(address, newName)
	}
}

// addressFor recovers a function's address from an earlier capture, so a
// by-name decompile stays linked to by-address ones.
func (c *Controller) addressFor(name string) string {
	if s := c.cache.Session(); s != nil {
		if fn, ok := s.FunctionByName(name); ok {
			return fn.Address
		}
	}
	return ""
}

// nameFor recovers the function name for a by-address capture: an
// earlier capture wins, then the name in the decompiled signature.
func (c *Controller) nameFor(address, code string) string {
	if s := c.cache.Session(); s != nil {
		if fn, ok := s.FunctionByAddress(address); ok && fn.Name != "" {
			return fn.Name
		}
	}
	return funcNameFromCode(code)
}

// funcSignature matches the name in the first function definition of a
// decompiled listing, e.g. "undefined8 __fastcall main(int argc)".
var funcSignature = regexp.MustCompile(`(?m)^(?:[\w\*]+\s+)+\**([A-Za-z_]\w*)\s*\(`)

func funcNameFromCode(code string) string {
	if m := funcSignature.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return ""
}

func isCancelQuery(query string) bool {
	return strings.TrimSpace(query) == CancelQuery
}
