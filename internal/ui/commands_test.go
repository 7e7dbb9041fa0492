package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godra/internal/agent"
	"godra/internal/cag"
)

type stubBackend struct {
	outcome   *agent.Outcome
	canceled  bool
	model     string
	switched  string
	switchErr error

	llmErr      error
	analyzerErr error

	stats     cag.Stats
	versions  map[string][]cag.DecompiledFunction
	knowledge KnowledgeStatus

	similar      string
	similarOK    bool
	similarQuery string

	sessions   []string
	sessionErr error
	loaded     string
	loadErr    error
	saved      bool
	saveErr    error
}

func (b *stubBackend) RunQuery(ctx context.Context, query string) *agent.Outcome {
	return b.outcome
}
func (b *stubBackend) CancelQuery() { b.canceled = true }

func (b *stubBackend) CurrentModel() string { return b.model }

func (b *stubBackend) SwitchModel(name string) error {
	b.switched = name
	return b.switchErr
}

func (b *stubBackend) Health(ctx context.Context) (error, error) {
	return b.llmErr, b.analyzerErr
}

func (b *stubBackend) CacheStats() cag.Stats { return b.stats }

func (b *stubBackend) FunctionVersions(nameOrAddress string) []cag.DecompiledFunction {
	return b.versions[nameOrAddress]
}

func (b *stubBackend) SimilarAnalysis(query string) (string, bool) {
	b.similarQuery = query
	return b.similar, b.similarOK
}

func (b *stubBackend) Sessions() ([]string, error) { return b.sessions, b.sessionErr }

func (b *stubBackend) LoadSession(id string) error { b.loaded = id; return b.loadErr }

func (b *stubBackend) SaveSession() error { b.saved = true; return b.saveErr }

func (b *stubBackend) KnowledgeStatus() KnowledgeStatus { return b.knowledge }

var _ Backend = (*stubBackend)(nil)

func newTestModel(backend *stubBackend) Model {
	return NewModel(Options{Backend: backend, Version: "test"})
}

func lastBlock(t *testing.T, m tea.Model) string {
	t.Helper()
	model, ok := m.(Model)
	require.True(t, ok)
	require.NotEmpty(t, model.transcript)
	return model.transcript[len(model.transcript)-1]
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line string
		name string
		arg  string
	}{
		{"/help", "/help", ""},
		{"/load abc", "/load", "abc"},
		{"/DIFF Main", "/diff", "Main"},
		{"  /model  phi4  ", "/model", "phi4"},
		{"/load a b", "/load", "a b"},
	}

	for _, tt := range tests {
		name, arg := splitCommand(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.arg, arg, tt.line)
	}
}

func TestRunCommandHelpListsCommands(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, cmd := m.runCommand("/help")

	assert.Nil(t, cmd)
	block := lastBlock(t, updated)
	for _, c := range commands {
		assert.Contains(t, block, c.name)
	}
}

func TestRunCommandUnknown(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, _ := m.runCommand("/bogus")

	assert.Contains(t, lastBlock(t, updated), "unknown command /bogus")
}

func TestRunCommandQuit(t *testing.T) {
	m := newTestModel(&stubBackend{})

	_, cmd := m.runCommand("/quit")

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRunCommandModelShowsCurrent(t *testing.T) {
	m := newTestModel(&stubBackend{model: "llama3"})

	updated, _ := m.runCommand("/model")

	assert.Contains(t, lastBlock(t, updated), "model: llama3")
}

func TestRunCommandModelSwitches(t *testing.T) {
	backend := &stubBackend{model: "llama3"}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/model phi4")

	assert.Equal(t, "phi4", backend.switched)
	assert.Contains(t, lastBlock(t, updated), "switched to model phi4")
}

func TestRunCommandLoadRequiresArg(t *testing.T) {
	backend := &stubBackend{}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/load")

	assert.Contains(t, lastBlock(t, updated), "usage: /load <id>")
	assert.Empty(t, backend.loaded)
}

func TestRunCommandLoadSession(t *testing.T) {
	backend := &stubBackend{}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/load abc123")

	assert.Equal(t, "abc123", backend.loaded)
	assert.Contains(t, lastBlock(t, updated), "loaded session abc123 as read-only history")
}

func TestRunCommandSaveSession(t *testing.T) {
	backend := &stubBackend{}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/save")

	assert.True(t, backend.saved)
	assert.Contains(t, lastBlock(t, updated), "session saved")
}

func TestRunCommandDiffWithoutCaptures(t *testing.T) {
	m := newTestModel(&stubBackend{versions: map[string][]cag.DecompiledFunction{}})

	updated, _ := m.runCommand("/diff main")

	assert.Contains(t, lastBlock(t, updated), `no captures of "main"`)
}

func TestRunCommandCodeRequiresArg(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, _ := m.runCommand("/code")

	assert.Contains(t, lastBlock(t, updated), "usage: /code")
}

func TestRunCommandCodeShowsLatestCapture(t *testing.T) {
	backend := &stubBackend{versions: map[string][]cag.DecompiledFunction{
		"main": {
			{Name: "main", Address: "0x00401000", Code: "void main(void)\n{\n  old_body();\n}"},
			{Name: "main", Address: "0x00401000", Code: "void main(void)\n{\n  parse_header();\n}"},
		},
	}}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/code main")

	block := lastBlock(t, updated)
	assert.Contains(t, block, "main")
	assert.Contains(t, block, "parse_header")
	assert.NotContains(t, block, "old_body")
}

func TestRunCommandCodeWithoutCaptures(t *testing.T) {
	m := newTestModel(&stubBackend{versions: map[string][]cag.DecompiledFunction{}})

	updated, _ := m.runCommand("/code main")

	assert.Contains(t, lastBlock(t, updated), `no captures of "main"`)
}

func TestRunCommandCopyWithoutReport(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, _ := m.runCommand("/copy")

	assert.Contains(t, lastBlock(t, updated), "nothing to copy yet")
}

func TestRunCommandLogRequiresArg(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, _ := m.runCommand("/log")

	assert.Contains(t, lastBlock(t, updated), "usage: /log <question>")
}

func TestRunCommandLogRecallsAnalysis(t *testing.T) {
	backend := &stubBackend{similar: "The binary is a dropper.", similarOK: true}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/log what does this binary do")

	assert.Equal(t, "what does this binary do", backend.similarQuery)
	block := lastBlock(t, updated)
	assert.Contains(t, block, "recalled")
	assert.Contains(t, block, "The binary is a dropper.")
}

func TestRunCommandLogWithoutMatch(t *testing.T) {
	m := newTestModel(&stubBackend{})

	updated, _ := m.runCommand("/log what does this binary do")

	assert.Contains(t, lastBlock(t, updated), "no past analysis")
}

func TestRunCommandClearEmptiesTranscript(t *testing.T) {
	m := newTestModel(&stubBackend{})
	(&m).appendBlock("old content")

	updated, _ := m.runCommand("/clear")

	model := updated.(Model)
	assert.Empty(t, model.transcript)
}

func TestCheckHealthProbesBackend(t *testing.T) {
	backend := &stubBackend{
		model:       "llama3",
		analyzerErr: assert.AnError,
	}
	m := newTestModel(backend)

	_, cmd := m.runCommand("/health")
	require.NotNil(t, cmd)

	msg, ok := cmd().(healthMsg)
	require.True(t, ok)
	assert.Equal(t, "llama3", msg.model)
	assert.NoError(t, msg.llmErr)
	assert.ErrorIs(t, msg.analyzerErr, assert.AnError)
}

func TestRunCommandSessionsListsSaved(t *testing.T) {
	backend := &stubBackend{
		sessions: []string{"first", "second"},
		stats:    cag.Stats{SessionID: "second"},
	}
	m := newTestModel(backend)

	updated, _ := m.runCommand("/sessions")

	block := lastBlock(t, updated)
	assert.Contains(t, block, "first")
	assert.Contains(t, block, "second")
}
