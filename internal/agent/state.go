// Package agent runs the planning loop that answers binary analysis
// queries: a planner proposes tool calls, an executor runs them one at a
// time, an analyzer folds the results into a running answer, and a
// reviewer decides whether to keep going.
package agent

// Status classifies the outcome of one executor pass.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusNoPlan  Status = "no_plan"
)

// PlannedCall is one tool invocation queued by the planner.
type PlannedCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// ExecutionResult is the outcome of the most recent executor pass.
// Payload carries the tool output on success, Message the failure text
// otherwise. Each pass overwrites the previous result; there is exactly
// one current result per session.
type ExecutionResult struct {
	Status  Status         `json:"status"`
	Tool    string         `json:"tool,omitempty"`
	Params  map[string]any `json:"parameters,omitempty"`
	Payload string         `json:"payload,omitempty"`
	Message string         `json:"message,omitempty"`
}

// OK reports whether the pass produced usable tool output.
func (r ExecutionResult) OK() bool {
	return r.Status == StatusSuccess
}

// SharedState is the blackboard one session's phases read and write: the
// query, the pending plan, the latest result, the accumulated analysis,
// and the pass counter. It is owned by exactly one controller and is not
// safe for use across sessions.
type SharedState struct {
	UserQuery       string
	Plan            *PlanStore
	LastResult      *ExecutionResult // nil until the first pass completes
	CurrentAnalysis string
	Iteration       int
}

// NewSharedState seeds the blackboard for a fresh session.
func NewSharedState(query string) *SharedState {
	return &SharedState{
		UserQuery: query,
		Plan:      NewPlanStore(),
	}
}
