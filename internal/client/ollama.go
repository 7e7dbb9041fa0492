package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"godra/internal/logging"

	"github.com/ollama/ollama/api"
)

// OllamaConfig holds configuration for the Ollama API client.
type OllamaConfig struct {
	BaseURL     string        // Default: "http://localhost:11434"
	APIKey      string        // Optional, for remote Ollama servers with auth
	Model       string        // e.g., "llama3", "qwen2.5-coder"
	Temperature float32       // Temperature for generation
	MaxTokens   int           // Max output tokens
	HTTPTimeout time.Duration // HTTP request timeout (default: 120s)
	// Retry configuration
	MaxRetries int           // Maximum retry attempts (default: 3)
	RetryDelay time.Duration // Initial delay between retries (default: 1s)
}

// OllamaClient implements Client for the Ollama API.
type OllamaClient struct {
	client *api.Client
	config OllamaConfig
}

// authTransport adds an Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaClient creates a new Ollama API client.
func NewOllamaClient(config OllamaConfig) (*OllamaClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	// Warn if using unencrypted HTTP to a non-localhost host
	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host",
				"host", host,
				"recommendation", "use HTTPS for remote Ollama servers")
		}
	}

	// Create HTTP client with timeout and optional auth
	var httpClient *http.Client
	if config.APIKey != "" {
		httpClient = &http.Client{
			Timeout: config.HTTPTimeout,
			Transport: &authTransport{
				base:   http.DefaultTransport,
				apiKey: config.APIKey,
			},
		}
	} else {
		httpClient = &http.Client{
			Timeout: config.HTTPTimeout,
		}
	}

	return &OllamaClient{
		client: api.NewClient(baseURL, httpClient),
		config: config,
	}, nil
}

// Complete sends a prompt and returns the model's full text response.
func (c *OllamaClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return c.generate(ctx, prompt, systemPrompt, nil)
}

// CompleteStructured constrains the response to the given JSON schema and
// decodes it into out.
func (c *OllamaClient) CompleteStructured(ctx context.Context, prompt, systemPrompt string, schema json.RawMessage, out any) error {
	raw, err := c.generate(ctx, prompt, systemPrompt, schema)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), out); err != nil {
		return &StructuredOutputError{Raw: raw, Err: err}
	}
	return nil
}

// generate performs a non-streaming generate request with retry logic.
func (c *OllamaClient) generate(ctx context.Context, prompt, systemPrompt string, format json.RawMessage) (string, error) {
	req := &api.GenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: new(bool),
		Format: format,
		Options: map[string]any{
			"num_predict": c.config.MaxTokens,
		},
	}
	if c.config.Temperature > 0 {
		req.Options["temperature"] = c.config.Temperature
	}
	// Ollama defaults num_ctx to 4096, which silently truncates prompts
	// carrying decompiled functions. Raise it to the model's window, capped
	// to keep the KV cache affordable on 128k-window models.
	if win := GetModelProfile(c.config.Model).ContextWindow; win > 4096 {
		req.Options["num_ctx"] = min(win, 32768)
	}

	var lastErr error
	maxDelay := 30 * time.Second

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.config.RetryDelay, attempt-1, maxDelay)
			logging.Info("retrying Ollama request", "attempt", attempt, "delay", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := c.doGenerate(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", c.wrapOllamaError(err)
		}

		logging.Warn("Ollama request failed, will retry", "attempt", attempt, "error", err)
	}

	return "", fmt.Errorf("max retries (%d) exceeded: %w", c.config.MaxRetries, c.wrapOllamaError(lastErr))
}

// doGenerate performs a single generate request.
func (c *OllamaClient) doGenerate(ctx context.Context, req *api.GenerateRequest) (string, error) {
	var sb strings.Builder
	var inputTokens, outputTokens int

	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		if resp.Done {
			inputTokens = resp.PromptEvalCount
			outputTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logging.Debug("Ollama generate complete",
		"model", req.Model,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens)

	return sb.String(), nil
}

// Model returns the model name.
func (c *OllamaClient) Model() string {
	return c.config.Model
}

// WithModel returns a new client configured for the specified model.
func (c *OllamaClient) WithModel(model string) Client {
	if model == "" || model == c.config.Model {
		return c
	}
	newConfig := c.config
	newConfig.Model = model
	newClient, err := NewOllamaClient(newConfig)
	if err != nil {
		logging.Error("failed to create Ollama client with new model", "model", model, "error", err)
		return c
	}
	return newClient
}

// Health verifies that the Ollama server is accessible.
func (c *OllamaClient) Health(ctx context.Context) error {
	// Ollama has no explicit ping, use List as healthcheck
	_, err := c.client.List(ctx)
	if err != nil {
		return c.wrapOllamaError(err)
	}
	return nil
}

// ListModels returns the models available on the Ollama server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, c.wrapOllamaError(err)
	}

	models := make([]string, 0, len(resp.Models))
	for _, model := range resp.Models {
		models = append(models, model.Name)
	}
	return models, nil
}

// IsModelAvailable checks if a model is installed locally.
func (c *OllamaClient) IsModelAvailable(ctx context.Context, modelName string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}

	for _, m := range models {
		// Check exact match or with :latest tag
		if m == modelName || m == modelName+":latest" ||
			strings.HasPrefix(m, modelName+":") {
			return true, nil
		}
	}
	return false, nil
}

// isRetryableError returns true if the error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Connection errors are retryable
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}

	return false
}

// wrapOllamaError wraps Ollama errors with actionable messages.
func (c *OllamaClient) wrapOllamaError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") {
		return fmt.Errorf("Ollama server is not running (start it with 'ollama serve'): %w", err)
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return fmt.Errorf("Ollama request timed out (the model may still be loading, try again or use a smaller model): %w", err)
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return fmt.Errorf("model %q is not installed (pull it with 'ollama pull %s'): %w", c.config.Model, c.config.Model, err)
	}

	if strings.Contains(errStr, "model") && strings.Contains(errStr, "not found") {
		return fmt.Errorf("model %q is not installed (pull it with 'ollama pull %s'): %w", c.config.Model, c.config.Model, err)
	}

	return err
}
