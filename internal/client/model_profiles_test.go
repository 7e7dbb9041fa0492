package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetModelProfile(t *testing.T) {
	tests := []struct {
		model  string
		family string
		window int
		small  bool
	}{
		{"qwen2.5-coder:7b", "qwen", 32768, true},
		{"qwen2.5-coder:32b", "qwen", 32768, false},
		{"llama3.1:70b-instruct", "llama", 131072, false},
		{"llama3.2", "llama", 131072, true},
		{"LLAMA3:latest", "llama", 8192, false},
		{"mistral-nemo:12b", "mistral", 131072, true},
		{"some-brand-new-model", "unknown", 4096, true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p := GetModelProfile(tt.model)
			assert.Equal(t, tt.family, p.Family)
			assert.Equal(t, tt.window, p.ContextWindow)
			assert.Equal(t, tt.small, p.Small)
		})
	}
}

func TestPromptHintOnlyForSmallModels(t *testing.T) {
	assert.Contains(t, PromptHint("llama3.2:3b"), "JSON alone")
	assert.Empty(t, PromptHint("llama3.1:70b"))
}
