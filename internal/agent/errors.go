package agent

import (
	"errors"
	"fmt"
)

// ErrToolNotFound marks a planned call naming a tool outside the
// catalogue. The executor reports it as an error result, never a panic.
var ErrToolNotFound = errors.New("tool not found")

// ToolExecutionError wraps a provider failure during a tool call.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// MalformedPlanError indicates planner output that could not be read as
// a list of tool calls.
type MalformedPlanError struct {
	Reason string
}

func (e *MalformedPlanError) Error() string {
	return "malformed plan: " + e.Reason
}

// InvalidReviewerOutputError indicates reviewer output that failed the
// decision schema. Raw carries the offending text for logging.
type InvalidReviewerOutputError struct {
	Raw string
	Err error
}

func (e *InvalidReviewerOutputError) Error() string {
	return fmt.Sprintf("invalid reviewer output: %v", e.Err)
}

func (e *InvalidReviewerOutputError) Unwrap() error {
	return e.Err
}
