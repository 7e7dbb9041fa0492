package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"google.golang.org/genai"

	"godra/internal/agent"
	"godra/internal/cag"
	"godra/internal/client"
	"godra/internal/config"
	"godra/internal/ghidra"
	"godra/internal/logging"
	"godra/internal/semantic"
	"godra/internal/tools"
	"godra/internal/ui"
	"godra/internal/watcher"
)

// corpusReloadTimeout bounds re-embedding after a corpus change so a slow
// embedding backend cannot stall the watcher goroutine indefinitely.
const corpusReloadTimeout = 2 * time.Minute

// App owns the long-lived pieces of a run: the analysis backend, the tool
// registry, the completion client, the context cache, and the loop
// controller. It implements ui.Backend so the interactive session drives it
// directly, and exposes RunOnce for one-shot queries.
type App struct {
	cfg      *config.Config
	analyzer *ghidra.Client
	registry *tools.Registry
	cache    *cag.Manager
	embedder semantic.Embedder
	embCache *semantic.EmbeddingCache
	corpus   *watcher.Watcher
	program  *tea.Program

	// mu guards llm and controller, which /model swaps at runtime.
	mu         sync.Mutex
	llm        client.Client
	controller *agent.Controller
}

// New assembles the application from configuration. Optional pieces degrade
// rather than fail: a missing knowledge corpus, embedding key, or session
// directory produces a warning and a reduced feature set, because the loop
// itself only needs the completion client and the analysis backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogging(cfg)

	llm, err := client.NewOllamaClient(client.OllamaConfig{
		BaseURL:     cfg.Ollama.BaseURL,
		APIKey:      cfg.Ollama.APIKey,
		Model:       cfg.Ollama.Model,
		Temperature: cfg.Ollama.Temperature,
		MaxTokens:   cfg.Ollama.MaxOutputTokens,
		HTTPTimeout: cfg.Ollama.HTTPTimeout,
		MaxRetries:  cfg.Ollama.MaxRetries,
		RetryDelay:  cfg.Ollama.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}

	analyzer := ghidra.NewClient(ghidra.Config{
		BaseURL:  cfg.Ghidra.BaseURL,
		Timeout:  cfg.Ghidra.HTTPTimeout,
		MockMode: cfg.Ghidra.MockMode,
	})

	a := &App{
		cfg:      cfg,
		analyzer: analyzer,
		registry: tools.DefaultRegistry(analyzer),
		llm:      llm,
	}
	a.buildCache(ctx)
	a.controller = a.newController(llm)

	if cfg.Knowledge.Watch && cfg.Knowledge.Dir != "" {
		wcfg := watcher.DefaultConfig()
		wcfg.Enabled = true
		w, err := watcher.New(cfg.Knowledge.Dir, cfg.Knowledge.Patterns, wcfg)
		if err != nil {
			logging.Warn("corpus watcher unavailable", "dir", cfg.Knowledge.Dir, "error", err)
		} else {
			a.corpus = w
		}
	}

	logging.Info("application ready",
		"model", cfg.Ollama.Model,
		"ghidra", cfg.Ghidra.BaseURL,
		"mock", cfg.Ghidra.MockMode,
		"knowledge_dir", cfg.Knowledge.Dir,
	)
	return a, nil
}

func setupLogging(cfg *config.Config) {
	dir := config.ConfigDir()
	if dir == "" {
		logging.DisableLogging()
		return
	}
	if err := logging.EnableFileLogging(dir, logging.ParseLevel(cfg.Logging.Level)); err != nil {
		// Stderr logging would corrupt the TUI, so drop logs instead.
		logging.DisableLogging()
	}
}

// buildCache constructs the embedder, the knowledge cache, and the session
// store, then binds them into the cache manager. Every step is optional.
func (a *App) buildCache(ctx context.Context) {
	cfg := a.cfg

	if cfg.Embedding.APIKey != "" {
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Embedding.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			logging.Warn("embedding client failed, retrieval falls back to recency", "error", err)
		} else {
			a.embedder = semantic.NewGeminiEmbedder(gc, cfg.Embedding.Model)
			a.embCache = semantic.NewEmbeddingCache(config.ConfigDir(), cfg.Knowledge.Dir, cfg.Embedding.CacheTTL)
			if err := a.embCache.Load(); err != nil {
				logging.Debug("no embedding cache to restore", "error", err)
			} else if n := a.embCache.Cleanup(); n > 0 {
				logging.Debug("expired embeddings dropped", "count", n)
			}
		}
	}

	var knowledge *cag.KnowledgeCache
	if cfg.Knowledge.Dir != "" {
		kc, err := cag.LoadKnowledge(ctx, cfg.Knowledge.Dir, cfg.Knowledge.Patterns, a.embedder, a.embCache, cfg.Budget.TopK)
		if err != nil {
			logging.Warn("knowledge corpus not loaded", "dir", cfg.Knowledge.Dir, "error", err)
		} else {
			knowledge = kc
			logging.Info("knowledge corpus loaded", "documents", kc.Len(), "dir", cfg.Knowledge.Dir)
		}
	}

	var store *cag.Store
	if cfg.Session.Enabled {
		s, err := cag.NewStore(cfg.SessionDir())
		if err != nil {
			logging.Warn("session persistence disabled", "dir", cfg.SessionDir(), "error", err)
		} else {
			store = s
		}
	}

	a.cache = cag.NewManager(knowledge, cag.NewSessionCache(""), store, cfg.Budget)
}

// Run starts the interactive session and blocks until the user quits.
func (a *App) Run() error {
	model := ui.NewModel(ui.Options{
		Backend: a,
		Version: a.cfg.Version,
	})
	a.program = ui.NewProgram(model)
	a.wirePhase(a.controller)

	if a.corpus != nil {
		a.corpus.OnReload(a.reloadCorpus)
		if err := a.corpus.Start(); err != nil {
			logging.Warn("corpus watcher failed to start", "error", err)
		} else {
			defer a.corpus.Stop()
		}
	}

	_, err := a.program.Run()
	return err
}

// RunOnce answers a single query and writes the report to w. The process
// exits after one pass through the loop, so phase updates go to the log
// rather than a UI.
func (a *App) RunOnce(ctx context.Context, query string, w io.Writer) error {
	a.controller.OnPhase(func(phase agent.Phase, iteration int) {
		logging.Debug("phase transition", "phase", string(phase), "iteration", iteration)
	})

	outcome := a.controller.Run(ctx, query)
	report := outcome.Report
	if report == "" {
		report = outcome.Analysis
	}
	if report == "" {
		report = "No findings were produced."
	}
	fmt.Fprintln(w, strings.TrimRight(report, "\n"))

	if outcome.Directive == agent.DirectiveExitLoop && !outcome.Canceled {
		return fmt.Errorf("analysis incomplete after %d passes: %s", outcome.Iterations, outcome.Reason)
	}
	return nil
}

// HealthCheck probes the completion client and the analysis backend and
// writes one status line per backend.
func (a *App) HealthCheck(ctx context.Context, w io.Writer) error {
	llmErr, analyzerErr := a.Health(ctx)
	fmt.Fprintf(w, "model (%s): %s\n", a.CurrentModel(), statusWord(llmErr))
	fmt.Fprintf(w, "analysis backend: %s\n", statusWord(analyzerErr))
	if llmErr != nil {
		return llmErr
	}
	return analyzerErr
}

func statusWord(err error) string {
	if err != nil {
		return fmt.Sprintf("unreachable: %v", err)
	}
	return "ok"
}

// Close persists session and embedding state. Safe to call once after Run
// or RunOnce returns.
func (a *App) Close() {
	if a.cfg.Session.Enabled {
		if err := a.cache.SaveSession(); err != nil {
			logging.Warn("session not saved", "error", err)
		}
	}
	if a.embCache != nil {
		if err := a.embCache.Save(); err != nil {
			logging.Debug("embedding cache not saved", "error", err)
		}
	}
	logging.Close()
}

// reloadCorpus rebuilds the knowledge cache after the watcher reports
// changed files, swaps it in atomically, and notifies the UI.
func (a *App) reloadCorpus(paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), corpusReloadTimeout)
	defer cancel()

	documents := 0
	kc, err := cag.LoadKnowledge(ctx, a.cfg.Knowledge.Dir, a.cfg.Knowledge.Patterns, a.embedder, a.embCache, a.cfg.Budget.TopK)
	if err == nil {
		a.cache.SwapKnowledge(kc)
		documents = kc.Len()
		logging.Info("knowledge corpus reloaded", "documents", documents, "changed", len(paths))
	} else {
		logging.Warn("corpus reload failed, keeping previous corpus", "error", err)
	}
	if a.program != nil {
		a.program.Send(watcher.NewReloadedMsg(paths, documents, err))
	}
}

// newController builds a loop controller around llm. A summarization
// model configured away from the default routes the report pass through
// its own client; otherwise the report pass follows the planning model.
func (a *App) newController(llm client.Client) *agent.Controller {
	ctrl := agent.NewController(llm, a.registry, a.cache, a.cfg.Loop)
	if sm := a.cfg.Ollama.SummaryModel(); sm != a.cfg.Ollama.Model && sm != llm.Model() {
		ctrl.UseSummaryClient(llm.WithModel(sm))
	}
	return ctrl
}

// wirePhase forwards controller phase transitions to the UI. Called again
// whenever /model rebuilds the controller.
func (a *App) wirePhase(ctrl *agent.Controller) {
	ctrl.OnPhase(func(phase agent.Phase, iteration int) {
		if a.program != nil {
			a.program.Send(ui.PhaseMsg{Phase: phase, Iteration: iteration})
		}
	})
}

// RunQuery implements ui.Backend. It blocks until the loop finishes, so the
// UI calls it from a tea.Cmd goroutine.
func (a *App) RunQuery(ctx context.Context, query string) *agent.Outcome {
	a.mu.Lock()
	ctrl := a.controller
	a.mu.Unlock()
	return ctrl.Run(ctx, query)
}

// CancelQuery implements ui.Backend. The loop notices at the next phase
// boundary and returns whatever it has.
func (a *App) CancelQuery() {
	a.mu.Lock()
	ctrl := a.controller
	a.mu.Unlock()
	ctrl.Cancel()
}

// CurrentModel implements ui.Backend.
func (a *App) CurrentModel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.llm.Model()
}

// SwitchModel implements ui.Backend. The controller is rebuilt so an
// in-flight query keeps its original client while new queries pick up the
// new model.
func (a *App) SwitchModel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("model name is empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.llm = a.llm.WithModel(name)
	a.controller = a.newController(a.llm)
	a.wirePhase(a.controller)
	logging.Info("model switched", "model", name)
	return nil
}

// Health implements ui.Backend.
func (a *App) Health(ctx context.Context) (error, error) {
	a.mu.Lock()
	llm := a.llm
	a.mu.Unlock()
	return llm.Health(ctx), a.analyzer.Health(ctx)
}

// CacheStats implements ui.Backend.
func (a *App) CacheStats() cag.Stats {
	return a.cache.Stats()
}

// FunctionVersions implements ui.Backend.
func (a *App) FunctionVersions(nameOrAddress string) []cag.DecompiledFunction {
	return a.cache.Session().FunctionVersions(nameOrAddress)
}

// SimilarAnalysis implements ui.Backend.
func (a *App) SimilarAnalysis(query string) (string, bool) {
	return a.cache.FindSimilarAnalysis(query)
}

// Sessions implements ui.Backend.
func (a *App) Sessions() ([]string, error) {
	return a.cache.Sessions()
}

// LoadSession implements ui.Backend.
func (a *App) LoadSession(id string) error {
	return a.cache.LoadSession(id)
}

// SaveSession implements ui.Backend.
func (a *App) SaveSession() error {
	return a.cache.SaveSession()
}

// KnowledgeStatus implements ui.Backend.
func (a *App) KnowledgeStatus() ui.KnowledgeStatus {
	st := ui.KnowledgeStatus{}
	if kc := a.cache.Knowledge(); kc != nil {
		st.Documents = kc.Len()
	}
	if a.corpus != nil {
		st.Watching = a.corpus.IsRunning()
		st.WatchedDirs = a.corpus.WatchedPaths()
		st.Reloads = a.corpus.Recent(5)
	}
	return st
}
