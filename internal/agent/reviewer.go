package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"godra/internal/client"
	"godra/internal/logging"
)

// Directive routes the loop after a pass.
type Directive string

const (
	DirectiveContinue    Directive = "CONTINUE"
	DirectiveRevisePlan  Directive = "REVISE_PLAN"
	DirectiveFinalAnswer Directive = "FINAL_ANSWER"
	DirectiveExitLoop    Directive = "EXIT_LOOP"
)

// Escalates reports whether the directive ends the session.
func (d Directive) Escalates() bool {
	return d == DirectiveFinalAnswer || d == DirectiveExitLoop
}

// Decision is the reviewer's verdict on one pass. Escalate is derived
// from the directive at construction, so the two cannot disagree.
type Decision struct {
	Directive Directive `json:"directive"`
	Reason    string    `json:"reason"`
	Escalate  bool      `json:"escalate"`
}

func newDecision(d Directive, reason string) Decision {
	return Decision{Directive: d, Reason: reason, Escalate: d.Escalates()}
}

// Reviewer decides what the loop does next. Two of its rules are
// mechanical and cost nothing; only the empty-plan judgment consults the
// model, constrained to the decision schema.
type Reviewer struct {
	client  client.Client
	timeout time.Duration
}

// NewReviewer creates a reviewer backed by the given completion service.
func NewReviewer(c client.Client, timeout time.Duration) *Reviewer {
	return &Reviewer{client: c, timeout: timeout}
}

// Review applies the routing rules in strict precedence order:
//
//  1. the last result is an error: REVISE_PLAN, whatever else holds
//  2. calls remain and the last result succeeded: CONTINUE
//  3. the plan is empty and the analysis answers the query: FINAL_ANSWER
//  4. otherwise: EXIT_LOOP
//
// Output that fails the decision schema degrades to a conservative
// REVISE_PLAN instead of surfacing an error.
func (r *Reviewer) Review(ctx context.Context, state *SharedState) Decision {
	if state.LastResult != nil && state.LastResult.Status == StatusError {
		return newDecision(DirectiveRevisePlan, "last tool call failed: "+state.LastResult.Message)
	}
	if state.Plan.Len() > 0 {
		return newDecision(DirectiveContinue, "plan execution ongoing")
	}
	return r.judge(ctx, state)
}

// judge asks the model whether the accumulated analysis answers the
// query, needs another round, or cannot be answered at all.
func (r *Reviewer) judge(ctx context.Context, state *SharedState) Decision {
	if r.client == nil {
		return newDecision(DirectiveExitLoop, "no completion service configured")
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var verdict struct {
		Directive string `json:"directive"`
		Reason    string `json:"reason"`
		Escalate  bool   `json:"escalate"`
	}
	err := r.client.CompleteStructured(callCtx, buildReviewerPrompt(state), reviewerSystemPrompt, reviewerSchema, &verdict)
	if err != nil {
		var schemaErr *client.StructuredOutputError
		if errors.As(err, &schemaErr) {
			invalid := &InvalidReviewerOutputError{Raw: schemaErr.Raw, Err: schemaErr}
			logging.Warn("reviewer output rejected", "error", invalid)
			return newDecision(DirectiveRevisePlan, "reviewer output did not match the decision schema; revising plan")
		}
		logging.Warn("reviewer unavailable", "error", err)
		return newDecision(DirectiveRevisePlan, fmt.Sprintf("reviewer unavailable (%v); revising plan", err))
	}

	directive, ok := parseDirective(verdict.Directive)
	if !ok {
		invalid := &InvalidReviewerOutputError{Raw: verdict.Directive, Err: fmt.Errorf("unknown directive %q", verdict.Directive)}
		logging.Warn("reviewer output rejected", "error", invalid)
		return newDecision(DirectiveRevisePlan, "reviewer returned an unknown directive; revising plan")
	}

	reason := strings.TrimSpace(verdict.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	// Escalate follows the directive, never the model's field.
	return newDecision(directive, reason)
}

// parseDirective maps model output onto a directive the empty-plan
// judgment may produce. CONTINUE makes no sense with nothing left to
// execute and reads as a revision.
func parseDirective(raw string) (Directive, bool) {
	switch Directive(strings.ToUpper(strings.TrimSpace(raw))) {
	case DirectiveFinalAnswer:
		return DirectiveFinalAnswer, true
	case DirectiveExitLoop:
		return DirectiveExitLoop, true
	case DirectiveRevisePlan, DirectiveContinue:
		return DirectiveRevisePlan, true
	}
	return "", false
}
