package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

const healthTimeout = 5 * time.Second

// command describes one slash command for /help.
type command struct {
	name string
	args string
	desc string
}

var commands = []command{
	{"/help", "", "list commands"},
	{"/health", "", "check the model and analysis backends"},
	{"/cache", "", "show session cache composition"},
	{"/knowledge", "", "show reference corpus status"},
	{"/sessions", "", "list saved sessions"},
	{"/load", "<id>", "load a saved session as read-only history"},
	{"/save", "", "save the current session"},
	{"/code", "<function>", "show the latest decompiled capture of a function"},
	{"/diff", "<function>", "diff the last two captures of a function"},
	{"/log", "<question>", "recall a past analysis answering a similar question"},
	{"/copy", "", "copy the last report to the clipboard"},
	{"/model", "[name]", "show or switch the completion model"},
	{"/clear", "", "clear the transcript"},
	{"/quit", "", "exit"},
}

// splitCommand separates a command name from its argument.
func splitCommand(line string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	name := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return name, ""
	}
	return name, strings.TrimSpace(parts[1])
}

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, arg := splitCommand(line)

	switch name {
	case "/help":
		m.appendBlock(renderHelp(m.styles))

	case "/quit", "/exit":
		return m, tea.Quit

	case "/clear":
		m.transcript = nil
		m.viewport.SetContent("")

	case "/health":
		m.appendBlock(m.styles.FormatNotice("checking backends…"))
		return m, m.checkHealth()

	case "/cache":
		m.appendBlock(renderStats(m.styles, m.backend.CacheStats()))

	case "/knowledge":
		m.appendBlock(renderKnowledge(m.styles, m.backend.KnowledgeStatus()))

	case "/sessions":
		ids, err := m.backend.Sessions()
		if err != nil {
			m.appendBlock(m.styles.FormatError(err))
			break
		}
		m.appendBlock(renderSessions(m.styles, ids, m.backend.CacheStats().SessionID))

	case "/load":
		if arg == "" {
			m.appendBlock(m.styles.Warning.Render("usage: /load <id>"))
			break
		}
		if err := m.backend.LoadSession(arg); err != nil {
			m.appendBlock(m.styles.FormatError(err))
			break
		}
		m.appendBlock(m.styles.FormatNotice("loaded session " + shortID(arg) + " as read-only history"))

	case "/save":
		if err := m.backend.SaveSession(); err != nil {
			m.appendBlock(m.styles.FormatError(err))
			break
		}
		m.appendBlock(m.styles.FormatNotice("session saved"))

	case "/copy":
		if m.lastReport == "" {
			m.appendBlock(m.styles.Warning.Render("nothing to copy yet"))
			break
		}
		if err := clipboard.WriteAll(m.lastReport); err != nil {
			m.appendBlock(m.styles.FormatError(fmt.Errorf("clipboard: %w", err)))
			break
		}
		m.appendBlock(m.styles.FormatNotice("report copied to clipboard"))

	case "/code":
		if arg == "" {
			m.appendBlock(m.styles.Warning.Render("usage: /code <function name or address>"))
			break
		}
		m.appendBlock(renderCode(m.styles, m.hl, arg, m.backend.FunctionVersions(arg)))

	case "/diff":
		if arg == "" {
			m.appendBlock(m.styles.Warning.Render("usage: /diff <function name or address>"))
			break
		}
		m.appendBlock(renderFunctionDiff(m.styles, m.hl, arg, m.backend.FunctionVersions(arg)))

	case "/log":
		if arg == "" {
			m.appendBlock(m.styles.Warning.Render("usage: /log <question>"))
			break
		}
		answer, ok := m.backend.SimilarAnalysis(arg)
		if !ok {
			m.appendBlock(m.styles.Warning.Render("no past analysis in this session matches that question"))
			break
		}
		m.appendBlock(renderRecall(m.styles, m.renderer, answer))

	case "/model":
		if arg == "" {
			m.appendBlock(m.styles.FormatNotice("model: " + m.backend.CurrentModel()))
			break
		}
		if err := m.backend.SwitchModel(arg); err != nil {
			m.appendBlock(m.styles.FormatError(err))
			break
		}
		m.appendBlock(m.styles.FormatNotice("switched to model " + arg))

	default:
		m.appendBlock(m.styles.Warning.Render(
			fmt.Sprintf("unknown command %s, try /help", name)))
	}

	return m, nil
}

func (m Model) checkHealth() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		llmErr, analyzerErr := backend.Health(ctx)
		return healthMsg{
			model:       backend.CurrentModel(),
			llmErr:      llmErr,
			analyzerErr: analyzerErr,
		}
	}
}
