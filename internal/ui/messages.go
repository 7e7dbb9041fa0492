package ui

import (
	"time"

	"godra/internal/agent"
)

// PhaseMsg reports loop progress. The application forwards controller
// phase callbacks into the running program as these.
type PhaseMsg struct {
	Phase     agent.Phase
	Iteration int
}

// runDoneMsg delivers the outcome of a finished query.
type runDoneMsg struct {
	outcome *agent.Outcome
	elapsed time.Duration
}

// healthMsg carries the results of a /health probe.
type healthMsg struct {
	model       string
	llmErr      error
	analyzerErr error
}
