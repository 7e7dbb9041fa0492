// Package client provides the completion service the analysis loop talks
// to, plus parsers for the two plan formats models emit (JSON tool calls
// and the EXECUTE command grammar).
package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the language-model completion service.
type Client interface {
	// Complete sends a prompt and returns the model's full text response.
	// systemPrompt may be empty.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)

	// CompleteStructured constrains the response to the given JSON schema
	// and decodes it into out. A response that cannot be decoded returns a
	// *StructuredOutputError.
	CompleteStructured(ctx context.Context, prompt, systemPrompt string, schema json.RawMessage, out any) error

	// Model returns the model name this client generates with.
	Model() string

	// WithModel returns a client configured for a different model,
	// sharing the same connection settings.
	WithModel(model string) Client

	// Health verifies the backing server is reachable.
	Health(ctx context.Context) error
}

// StructuredOutputError indicates the model's response did not decode
// against the requested schema. Raw carries the offending text so callers
// can log or degrade.
type StructuredOutputError struct {
	Raw string
	Err error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output did not match schema: %v", e.Err)
}

func (e *StructuredOutputError) Unwrap() error {
	return e.Err
}

// ToolCall is a tool invocation parsed from model output. Params may be
// empty but never nil.
type ToolCall struct {
	Tool   string
	Params map[string]any
}
