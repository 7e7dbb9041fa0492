package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOllamaClient(OllamaConfig{
		BaseURL:     srv.URL,
		Model:       "llama3",
		HTTPTimeout: 5 * time.Second,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewOllamaClientRequiresModel(t *testing.T) {
	_, err := NewOllamaClient(OllamaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model name is required")
}

func TestCompleteSendsPromptAndSystem(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "llama3", req["model"])
		assert.Equal(t, "what does main do", req["prompt"])
		assert.Equal(t, "you are a reverse engineer", req["system"])
		assert.Equal(t, false, req["stream"])

		io.WriteString(w, `{"model":"llama3","response":"main parses the header.","done":true}`)
	})

	out, err := c.Complete(context.Background(), "what does main do", "you are a reverse engineer")
	require.NoError(t, err)
	assert.Equal(t, "main parses the header.", out)
}

func TestCompleteStructuredDecodesResponse(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"directive":{"type":"string"}}}`)

	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		// Format carries the schema through to the server
		assert.NotNil(t, req["format"])

		io.WriteString(w, `{"model":"llama3","response":"{\"directive\":\"CONTINUE\"}","done":true}`)
	})

	var decision struct {
		Directive string `json:"directive"`
	}
	err := c.CompleteStructured(context.Background(), "review", "", schema, &decision)
	require.NoError(t, err)
	assert.Equal(t, "CONTINUE", decision.Directive)
}

func TestCompleteStructuredBadJSONReturnsTypedError(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)

	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"llama3","response":"not json at all","done":true}`)
	})

	var out map[string]any
	err := c.CompleteStructured(context.Background(), "review", "", schema, &out)
	require.Error(t, err)

	var structErr *StructuredOutputError
	require.ErrorAs(t, err, &structErr)
	assert.Equal(t, "not json at all", structErr.Raw)
}

func TestHealthUsesListEndpoint(t *testing.T) {
	var path string
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		io.WriteString(w, `{"models":[{"name":"llama3:latest"}]}`)
	})

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "/api/tags", path)
}

func TestIsModelAvailable(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llama3:latest"},{"name":"qwen2.5-coder:7b"}]}`)
	})

	ok, err := c.IsModelAvailable(context.Background(), "llama3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsModelAvailable(context.Background(), "mistral")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithModelKeepsConnectionSettings(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {})

	summarizer := c.WithModel("llama3-summarize")
	assert.Equal(t, "llama3-summarize", summarizer.Model())
	assert.Equal(t, "llama3", c.Model())

	// Same model returns the same client
	assert.Same(t, Client(c), c.WithModel("llama3"))
	assert.Same(t, Client(c), c.WithModel(""))
}

func TestAuthTransportAddsBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"models":[]}`)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(OllamaConfig{
		BaseURL: srv.URL,
		Model:   "llama3",
		APIKey:  "secret-key",
	})
	require.NoError(t, err)

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "Bearer secret-key", gotAuth)
}
