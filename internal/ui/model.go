package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"godra/internal/agent"
	"godra/internal/cag"
	"godra/internal/highlight"
	"godra/internal/watcher"
)

// Backend is what the terminal session needs from the application:
// query execution, cache introspection, and backend health checks.
type Backend interface {
	RunQuery(ctx context.Context, query string) *agent.Outcome
	CancelQuery()
	CurrentModel() string
	SwitchModel(name string) error
	Health(ctx context.Context) (llm, analyzer error)
	CacheStats() cag.Stats
	FunctionVersions(nameOrAddress string) []cag.DecompiledFunction
	SimilarAnalysis(query string) (string, bool)
	Sessions() ([]string, error)
	LoadSession(id string) error
	SaveSession() error
	KnowledgeStatus() KnowledgeStatus
}

// KnowledgeStatus describes the reference corpus for the /knowledge view.
type KnowledgeStatus struct {
	Documents   int
	Watching    bool
	WatchedDirs int
	Reloads     []watcher.Reload
}

// State represents what the session is currently doing.
type State int

const (
	StateInput State = iota
	StateProcessing
)

const maxHistory = 100

// Model is the Bubble Tea model for the interactive session.
type Model struct {
	backend Backend
	styles  *Styles
	hl      *highlight.Highlighter

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	state  State
	width  int
	height int
	ready  bool

	transcript []string
	history    []string
	historyIdx int

	phase     agent.Phase
	iteration int
	runStart  time.Time

	lastReport string
	version    string
}

// Options configures a session model.
type Options struct {
	Backend Backend
	Version string
	// CodeStyle is the chroma style for highlighted output. Empty means
	// monokai.
	CodeStyle string
}

// NewModel creates the session model.
func NewModel(opts Options) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask about the binary or type /help"
	ti.Prompt = styles.Prompt.Render("❯ ")
	ti.Focus()
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return Model{
		backend:    opts.Backend,
		styles:     styles,
		hl:         highlight.New(opts.CodeStyle),
		input:      ti,
		spinner:    sp,
		state:      StateInput,
		historyIdx: -1,
		version:    opts.Version,
	}
}

// NewProgram wraps the model in a program running on the alternate screen.
// The caller keeps the program reference so controller phase callbacks and
// watcher reloads can be forwarded with Send.
func NewProgram(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.state != StateProcessing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PhaseMsg:
		m.phase = msg.Phase
		m.iteration = msg.Iteration
		return m, nil

	case runDoneMsg:
		m.state = StateInput
		m.phase = ""
		m.lastReport = msg.outcome.Report
		m.appendBlock(renderOutcome(m.styles, m.renderer, msg.outcome, msg.elapsed))
		return m, nil

	case healthMsg:
		m.appendBlock(renderHealth(m.styles, msg))
		return m, nil

	case watcher.ReloadedMsg:
		m.appendBlock(renderReload(m.styles, msg))
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.state == StateProcessing {
			m.backend.CancelQuery()
		}
		return m, tea.Quit

	case "esc":
		if m.state == StateProcessing {
			m.backend.CancelQuery()
			m.appendBlock(m.styles.FormatNotice("cancel requested, finishing current pass"))
		}
		return m, nil

	case "enter":
		return m.submit()

	case "up":
		if m.state == StateInput {
			m.recallHistory(-1)
		}
		return m, nil

	case "down":
		if m.state == StateInput {
			m.recallHistory(1)
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.state == StateProcessing {
		return m, nil
	}

	m.pushHistory(line)
	m.input.Reset()

	if strings.HasPrefix(line, "/") {
		return m.runCommand(line)
	}

	m.appendBlock(m.styles.FormatUserQuery(line))
	m.state = StateProcessing
	m.runStart = time.Now()
	m.phase = ""
	m.iteration = 0
	return m, tea.Batch(m.spinner.Tick, m.startRun(line))
}

// startRun executes the query off the UI goroutine. Cancellation goes
// through Backend.CancelQuery rather than the context, so the loop can
// finish its current pass and still deliver partial findings.
func (m Model) startRun(query string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		start := time.Now()
		outcome := backend.RunQuery(context.Background(), query)
		return runDoneMsg{outcome: outcome, elapsed: time.Since(start)}
	}
}

func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := lipgloss.Height(m.bannerView())
	footerHeight := 2
	vpHeight := msg.Height - headerHeight - footerHeight - 1
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4

	wrap := msg.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	if renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	); err == nil {
		m.renderer = renderer
	}

	m.syncViewport()
	return m
}

func (m *Model) appendBlock(block string) {
	m.transcript = append(m.transcript, block)
	m.syncViewport()
}

func (m *Model) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *Model) pushHistory(line string) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = -1
}

// recallHistory moves through past inputs; -1 is older, +1 is newer.
// Moving past the newest entry restores an empty prompt.
func (m *Model) recallHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	if m.historyIdx == -1 {
		if delta > 0 {
			return
		}
		m.historyIdx = len(m.history)
	}
	m.historyIdx += delta
	if m.historyIdx < 0 {
		m.historyIdx = 0
	}
	if m.historyIdx >= len(m.history) {
		m.historyIdx = -1
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[m.historyIdx])
	m.input.CursorEnd()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.bannerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) bannerView() string {
	title := m.styles.Banner.Render("godra")
	info := m.styles.BannerInfo.Render(fmt.Sprintf(
		"%s · model %s · /help for commands", m.version, m.backend.CurrentModel()))
	return title + " " + info
}

func (m Model) statusView() string {
	if m.state == StateProcessing {
		icon := PhaseIcons[string(m.phase)]
		label := string(m.phase)
		if label == "" {
			icon = "○"
			label = "STARTING"
		}
		elapsed := time.Since(m.runStart).Round(time.Second)
		return m.spinner.View() +
			m.styles.Phase.Render(fmt.Sprintf("%s %s", icon, label)) +
			m.styles.Iteration.Render(fmt.Sprintf(" · pass %d · %s · esc to cancel", m.iteration+1, elapsed))
	}

	stats := m.backend.CacheStats()
	return m.styles.StatusBar.Render(fmt.Sprintf(
		"session %s · %d cached entries", shortID(stats.SessionID), entryTotal(stats.SessionEntries)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func entryTotal(counts map[cag.Kind]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
