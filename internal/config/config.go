package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Ollama    OllamaConfig    `yaml:"ollama"`
	Ghidra    GhidraConfig    `yaml:"ghidra"`
	Loop      LoopConfig      `yaml:"loop"`
	Budget    BudgetConfig    `yaml:"budget"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Session   SessionConfig   `yaml:"session"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// OllamaConfig holds completion service settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	// APIKey is optional, for remote Ollama servers behind auth.
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model"`
	// SummarizationModel overrides Model for the final report pass.
	// Empty means use the main model.
	SummarizationModel string        `yaml:"summarization_model,omitempty"`
	Temperature        float32       `yaml:"temperature"`
	MaxOutputTokens    int           `yaml:"max_output_tokens"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
}

// GhidraConfig holds tool provider settings.
type GhidraConfig struct {
	BaseURL     string        `yaml:"base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// MockMode serves a canned sample program instead of a live backend.
	MockMode bool `yaml:"mock_mode"`
}

// LoopConfig holds orchestration loop settings.
type LoopConfig struct {
	// MaxIterations is the hard backstop on loop passes per session.
	MaxIterations int `yaml:"max_iterations"`
	// PhaseTimeout bounds each blocking provider/completion call.
	PhaseTimeout time.Duration `yaml:"phase_timeout"`
	// Summarize enables the final report pass on FINAL_ANSWER.
	Summarize bool `yaml:"summarize"`
}

// BudgetConfig holds context packing settings. Sizes are measured with the
// chars/4 heuristic, not an exact tokenizer.
type BudgetConfig struct {
	// TokenLimit is the total context budget per prompt.
	TokenLimit int `yaml:"token_limit"`
	// TopK is the number of knowledge documents retrieved per query.
	TopK int `yaml:"top_k"`
	// Phase allocation: fraction of TokenLimit each phase receives.
	PlanningShare  float64 `yaml:"planning_share"`
	ExecutionShare float64 `yaml:"execution_share"`
	AnalysisShare  float64 `yaml:"analysis_share"`
	DefaultShare   float64 `yaml:"default_share"`
	// MinSessionTokens is the floor below which the session block is skipped.
	MinSessionTokens int `yaml:"min_session_tokens"`
}

// KnowledgeConfig holds static knowledge corpus settings.
type KnowledgeConfig struct {
	// Dir is the directory holding reference documents.
	Dir string `yaml:"dir"`
	// Patterns are doublestar globs selecting documents under Dir.
	Patterns []string `yaml:"patterns"`
	// Watch reloads the corpus when files under Dir change.
	Watch bool `yaml:"watch"`
}

// SessionConfig holds session log persistence settings.
type SessionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir overrides the default <config>/sessions storage directory.
	Dir string `yaml:"dir,omitempty"`
}

// EmbeddingConfig holds embedding backend settings. The backend is optional:
// without it, retrieval degrades to a pseudo-random sample.
type EmbeddingConfig struct {
	APIKey   string        `yaml:"api_key,omitempty"`
	Model    string        `yaml:"model"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// PhaseShare returns the budget fraction configured for a phase name.
func (b BudgetConfig) PhaseShare(phase string) float64 {
	switch phase {
	case "planning":
		if b.PlanningShare > 0 {
			return b.PlanningShare
		}
	case "execution":
		if b.ExecutionShare > 0 {
			return b.ExecutionShare
		}
	case "analysis":
		if b.AnalysisShare > 0 {
			return b.AnalysisShare
		}
	}
	if b.DefaultShare > 0 {
		return b.DefaultShare
	}
	return 0.4
}

// SummaryModel returns the model used for the final report pass.
func (o OllamaConfig) SummaryModel() string {
	if o.SummarizationModel != "" {
		return o.SummarizationModel
	}
	return o.Model
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			BaseURL:         "http://localhost:11434",
			Model:           "llama3",
			Temperature:     0.2,
			MaxOutputTokens: 4096,
			HTTPTimeout:     120 * time.Second,
			MaxRetries:      3,
			RetryDelay:      1 * time.Second,
		},
		Ghidra: GhidraConfig{
			BaseURL:     "http://localhost:8080",
			HTTPTimeout: 30 * time.Second,
			MockMode:    false,
		},
		Loop: LoopConfig{
			MaxIterations: 10,
			PhaseTimeout:  2 * time.Minute,
			Summarize:     true,
		},
		Budget: BudgetConfig{
			TokenLimit:       2000,
			TopK:             3,
			PlanningShare:    0.4,
			ExecutionShare:   0.3,
			AnalysisShare:    0.5,
			DefaultShare:     0.4,
			MinSessionTokens: 200,
		},
		Knowledge: KnowledgeConfig{
			Patterns: []string{"**/*.json", "**/*.md"},
			Watch:    false,
		},
		Session: SessionConfig{
			Enabled: true,
		},
		Embedding: EmbeddingConfig{
			Model:    "text-embedding-004",
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}
