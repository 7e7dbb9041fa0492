package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"godra/internal/client"
	"godra/internal/logging"
	"godra/internal/tools"
)

// Planner turns the query and the session state into the minimal ordered
// tool call sequence.
type Planner struct {
	client   client.Client
	registry *tools.Registry
	timeout  time.Duration
}

// NewPlanner creates a planner over the given completion service and
// tool catalogue.
func NewPlanner(c client.Client, registry *tools.Registry, timeout time.Duration) *Planner {
	return &Planner{client: c, registry: registry, timeout: timeout}
}

// Plan asks the model for a fresh call sequence; the result replaces any
// pending plan. contextBlock is reference material packed by the caller
// and may be empty. An explicit empty list is a valid plan; a response
// with no readable calls in either accepted format is a
// *MalformedPlanError.
func (p *Planner) Plan(ctx context.Context, state *SharedState, contextBlock string) ([]PlannedCall, error) {
	if p.client == nil {
		return nil, fmt.Errorf("no completion service configured")
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	prompt := buildPlannerPrompt(state, renderCatalogue(p.registry), contextBlock)
	system := plannerSystemPrompt + client.PromptHint(p.client.Model())
	text, err := p.client.Complete(callCtx, prompt, system)
	if err != nil {
		return nil, fmt.Errorf("planning completion: %w", err)
	}

	calls, err := ParsePlan(text)
	if err != nil {
		return nil, err
	}
	logging.Debug("plan produced", "calls", len(calls))
	return calls, nil
}

// planEntry covers the JSON key aliases models use for plan entries.
type planEntry struct {
	Tool       string         `json:"tool"`
	ToolName   string         `json:"tool_name"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Params     map[string]any `json:"params"`
	Args       map[string]any `json:"args"`
}

func (e planEntry) call() (PlannedCall, bool) {
	tool := e.Tool
	if tool == "" {
		tool = e.ToolName
	}
	if tool == "" {
		tool = e.Name
	}
	if strings.TrimSpace(tool) == "" {
		return PlannedCall{}, false
	}

	params := e.Parameters
	if params == nil {
		params = e.Params
	}
	if params == nil {
		params = e.Args
	}
	if params == nil {
		params = make(map[string]any)
	}
	return PlannedCall{Tool: tool, Parameters: params}, true
}

// ParsePlan reads planner output into an ordered call sequence. A bare
// or fenced JSON array is decoded strictly: an entry without a tool name
// is a *MalformedPlanError, and [] is a valid empty plan. Anything else
// falls back to the tolerant tool-call and EXECUTE command parsers; if
// neither finds a call, the plan is malformed.
func ParsePlan(text string) ([]PlannedCall, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &MalformedPlanError{Reason: "empty response"}
	}

	if arr, ok := jsonArrayBody(trimmed); ok {
		return decodePlanArray(arr)
	}

	raw := client.ParseToolCalls(text)
	if len(raw) == 0 {
		raw = client.ParseCommands(text)
	}
	if len(raw) == 0 {
		return nil, &MalformedPlanError{Reason: "no tool calls found in response"}
	}

	calls := make([]PlannedCall, 0, len(raw))
	for _, tc := range raw {
		calls = append(calls, PlannedCall{Tool: tc.Tool, Parameters: tc.Params})
	}
	return calls, nil
}

// jsonArrayBody strips an optional code fence and reports whether what
// remains is a single JSON array.
func jsonArrayBody(text string) (string, bool) {
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text, true
	}
	return "", false
}

func decodePlanArray(arr string) ([]PlannedCall, error) {
	var entries []planEntry
	if err := json.Unmarshal([]byte(arr), &entries); err != nil {
		return nil, &MalformedPlanError{Reason: "plan is not a list of tool calls: " + err.Error()}
	}

	calls := make([]PlannedCall, 0, len(entries))
	for i, entry := range entries {
		call, ok := entry.call()
		if !ok {
			return nil, &MalformedPlanError{Reason: fmt.Sprintf("plan entry %d is missing a tool name", i)}
		}
		calls = append(calls, call)
	}
	return calls, nil
}
