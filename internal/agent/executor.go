package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"godra/internal/logging"
	"godra/internal/tools"
)

// Executor runs the head of the plan against the tool catalogue. Every
// failure mode comes back as an error result rather than an error: an
// unknown tool name, rejected parameters, a provider fault, a timeout.
// Exactly one planned call is consumed per pass regardless of outcome.
type Executor struct {
	registry *tools.Registry
	timeout  time.Duration
}

// NewExecutor creates an executor over the given catalogue. timeout
// bounds each tool call; zero means no bound beyond the caller's context.
func NewExecutor(registry *tools.Registry, timeout time.Duration) *Executor {
	return &Executor{registry: registry, timeout: timeout}
}

// Execute pops the head of the plan and runs it. An empty plan yields a
// no_plan result.
func (e *Executor) Execute(ctx context.Context, plan *PlanStore) ExecutionResult {
	call, ok := plan.Pop()
	if !ok {
		return ExecutionResult{Status: StatusNoPlan, Message: "no tool calls in plan"}
	}
	if call.Parameters == nil {
		call.Parameters = make(map[string]any)
	}

	tool, ok := e.registry.Get(call.Tool)
	if !ok {
		logging.Warn("planned tool not in catalogue", "tool", call.Tool)
		return ExecutionResult{
			Status:  StatusError,
			Tool:    call.Tool,
			Params:  call.Parameters,
			Message: fmt.Sprintf("%v: %s", ErrToolNotFound, call.Tool),
		}
	}

	normalizeAddresses(tool, call.Parameters)

	if err := tool.Validate(call.Parameters); err != nil {
		return ExecutionResult{
			Status:  StatusError,
			Tool:    call.Tool,
			Params:  call.Parameters,
			Message: fmt.Sprintf("invalid parameters for %s: %s", call.Tool, err),
		}
	}

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logging.Debug("executing tool", "tool", call.Tool, "pending", plan.Len())
	result, err := tool.Execute(execCtx, call.Parameters)
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Tool, Err: err}
		logging.Warn("tool execution failed", "tool", call.Tool, "error", err)
		return ExecutionResult{
			Status:  StatusError,
			Tool:    call.Tool,
			Params:  call.Parameters,
			Message: execErr.Error(),
		}
	}
	if !result.Success {
		logging.Warn("tool reported failure", "tool", call.Tool, "error", result.Error)
		return ExecutionResult{
			Status:  StatusError,
			Tool:    call.Tool,
			Params:  call.Parameters,
			Message: result.Error,
		}
	}

	return ExecutionResult{
		Status:  StatusSuccess,
		Tool:    call.Tool,
		Params:  call.Parameters,
		Payload: result.Content,
	}
}

// normalizeAddresses adds the 0x prefix to bare hex values in address
// parameters. Models copy addresses out of listings both ways; the
// provider expects the prefixed form.
func normalizeAddresses(tool tools.Tool, params map[string]any) {
	aware, ok := tool.(tools.AddressAware)
	if !ok {
		return
	}
	for _, key := range aware.AddressParameters() {
		val, ok := params[key].(string)
		if !ok || val == "" {
			continue
		}
		if strings.HasPrefix(val, "0x") || strings.HasPrefix(val, "0X") {
			continue
		}
		if isBareHex(val) {
			params[key] = "0x" + val
			logging.Debug("normalized address parameter", "tool", tool.Name(), "param", key)
		}
	}
}

func isBareHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return s != ""
}
