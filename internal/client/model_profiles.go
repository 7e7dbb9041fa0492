package client

import "strings"

// ModelProfile describes what is known about an Ollama model family: how
// much context it can actually hold, and whether it is small enough to
// need stricter output discipline.
type ModelProfile struct {
	Family        string
	ContextWindow int
	Small         bool
}

// profiles maps model name prefixes to known limits. Longest prefix wins,
// so "qwen2.5-coder" beats "qwen2.5".
var profiles = map[string]ModelProfile{
	"llama3.2":       {Family: "llama", ContextWindow: 131072, Small: true},
	"llama3.1":       {Family: "llama", ContextWindow: 131072},
	"llama3":         {Family: "llama", ContextWindow: 8192},
	"llama2":         {Family: "llama", ContextWindow: 4096},
	"qwen2.5-coder":  {Family: "qwen", ContextWindow: 32768},
	"qwen2.5":        {Family: "qwen", ContextWindow: 32768},
	"qwen2":          {Family: "qwen", ContextWindow: 32768},
	"qwen":           {Family: "qwen", ContextWindow: 8192},
	"mistral-nemo":   {Family: "mistral", ContextWindow: 131072},
	"mistral":        {Family: "mistral", ContextWindow: 32768},
	"mixtral":        {Family: "mistral", ContextWindow: 32768},
	"phi4":           {Family: "phi", ContextWindow: 16384, Small: true},
	"phi3":           {Family: "phi", ContextWindow: 4096, Small: true},
	"codellama":      {Family: "codellama", ContextWindow: 16384},
	"starcoder2":     {Family: "starcoder", ContextWindow: 16384},
	"deepseek-coder": {Family: "deepseek", ContextWindow: 16384},
	"codegemma":      {Family: "gemma", ContextWindow: 8192},
	"gemma2":         {Family: "gemma", ContextWindow: 8192, Small: true},
	"gemma":          {Family: "gemma", ContextWindow: 8192, Small: true},
	"command-r-plus": {Family: "command-r", ContextWindow: 131072},
	"command-r":      {Family: "command-r", ContextWindow: 131072},
}

// GetModelProfile resolves a model name, with or without a tag, to its
// profile. Unknown models get a conservative 4096-token window and are
// treated as small.
func GetModelProfile(model string) ModelProfile {
	name := strings.ToLower(model)
	if idx := strings.Index(name, ":"); idx > 0 {
		name = name[:idx]
	}

	best := ""
	for prefix := range profiles {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return ModelProfile{Family: "unknown", ContextWindow: 4096, Small: true}
	}
	p := profiles[best]
	p.Small = p.Small || smallTag(model)
	return p
}

// smallTag reports whether the tag names a sub-13B variant.
func smallTag(model string) bool {
	lower := strings.ToLower(model)
	for _, tag := range []string{
		":1b", ":3b", ":7b", ":8b", ":9b", ":11b", ":12b",
		"-1b", "-3b", "-7b", "-8b", "-9b", "-11b", "-12b",
	} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// PromptHint returns extra system prompt lines for models that need them.
// Small local models tend to wrap JSON in commentary; the tolerant
// parsers recover from that, but a reminder keeps most responses clean.
func PromptHint(model string) string {
	if !GetModelProfile(model).Small {
		return ""
	}
	return "\n\nKeep responses short. When asked for JSON, respond with the JSON alone: nothing before it, nothing after it."
}
