package cag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"godra/internal/config"
	"godra/internal/logging"
)

// Phase names used for budget allocation.
const (
	PhasePlanning  = "planning"
	PhaseExecution = "execution"
	PhaseAnalysis  = "analysis"
)

// ErrCacheUnavailable marks cache operations that need a storage or
// session half the manager was built without. Callers degrade, they do
// not abort the analysis.
var ErrCacheUnavailable = errors.New("context cache unavailable")

// Manager packs prompt context from the knowledge corpus and the session
// log under a shared token budget.
type Manager struct {
	mu        sync.RWMutex
	knowledge *KnowledgeCache
	session   *SessionCache
	history   []*SessionCache
	store     *Store
	budget    config.BudgetConfig
}

// NewManager wires the context caches together. knowledge and store may be
// nil to disable those halves.
func NewManager(knowledge *KnowledgeCache, session *SessionCache, store *Store, budget config.BudgetConfig) *Manager {
	return &Manager{
		knowledge: knowledge,
		session:   session,
		store:     store,
		budget:    budget,
	}
}

// Session exposes the live session log.
func (m *Manager) Session() *SessionCache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Knowledge exposes the current knowledge corpus.
func (m *Manager) Knowledge() *KnowledgeCache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.knowledge
}

// SwapKnowledge replaces the knowledge corpus. Used by the reload watcher;
// in-flight retrievals keep the corpus they started with.
func (m *Manager) SwapKnowledge(kc *KnowledgeCache) {
	m.mu.Lock()
	m.knowledge = kc
	m.mu.Unlock()
	logging.Info("knowledge corpus swapped", "documents", kc.Len())
}

// BuildContext assembles the context block for one prompt: the phase's
// knowledge share first, then the session view packed into whatever budget
// remains, provided more than the configured floor is left. Degraded
// halves contribute nothing rather than failing the call.
func (m *Manager) BuildContext(ctx context.Context, query, phase string, tokenLimit int) string {
	if tokenLimit <= 0 {
		tokenLimit = m.budget.TokenLimit
	}

	var sections []string
	used := 0

	if kc := m.Knowledge(); kc != nil {
		knowledgeBudget := int(float64(tokenLimit) * m.budget.PhaseShare(phase))
		if block := kc.Retrieve(ctx, query, knowledgeBudget); block != "" {
			sections = append(sections, block)
			used += EstimateTokens(block)
		}
	}

	if session := m.Session(); session != nil {
		remaining := tokenLimit - used
		if remaining > m.minSessionTokens() {
			if block := FormatEntries(session.Prune(query, remaining)); block != "" {
				sections = append(sections, block)
				used += EstimateTokens(block)
			}
		}
	}

	if len(sections) == 0 {
		return ""
	}
	logging.Debug("context built", "phase", phase, "tokens", used, "limit", tokenLimit)
	return strings.Join(sections, "\n\n")
}

func (m *Manager) minSessionTokens() int {
	if m.budget.MinSessionTokens > 0 {
		return m.budget.MinSessionTokens
	}
	return 200
}

// FindSimilarAnalysis returns a previous answer for a near-duplicate query.
// The live session is checked first, then loaded history in load order.
func (m *Manager) FindSimilarAnalysis(query string) (string, bool) {
	if s := m.Session(); s != nil {
		if result, ok := s.FindSimilarAnalysis(query); ok {
			return result, ok
		}
	}

	m.mu.RLock()
	history := m.history
	m.mu.RUnlock()
	for _, past := range history {
		if result, ok := past.FindSimilarAnalysis(query); ok {
			return result, ok
		}
	}
	return "", false
}

// RecordExchange adds one conversation turn to the session log.
func (m *Manager) RecordExchange(role, content string) {
	if s := m.Session(); s != nil {
		s.AddContextItem(role, content)
	}
}

// UpdateFromDecompile records a decompiled function in the session log.
func (m *Manager) UpdateFromDecompile(address, name, code string) {
	if s := m.Session(); s != nil {
		s.AddDecompiledFunction(address, name, code)
	}
}

// UpdateFromRename records a rename in the session log. The entity kind
// is inferred from the old identifier (bare hex reads as an address).
func (m *Manager) UpdateFromRename(oldNameOrAddress, newName string) {
	if s := m.Session(); s != nil {
		s.AddRenamedEntity(oldNameOrAddress, newName, "")
	}
}

// UpdateFromAnalysis records a completed analysis in the session log.
func (m *Manager) UpdateFromAnalysis(query, context, result string) {
	if s := m.Session(); s != nil {
		s.AddAnalysisResult(query, context, result)
	}
}

// SaveSession flushes the session log to storage. A nil store or an empty
// log is a no-op.
func (m *Manager) SaveSession() error {
	m.mu.RLock()
	store, session := m.store, m.session
	m.mu.RUnlock()

	if store == nil || session == nil || session.Len() == 0 {
		return nil
	}
	return store.Save(session)
}

// LoadSession pulls a stored session log in as read-only history. The live
// session keeps accumulating under its own id; loaded logs only answer
// similarity lookups. Loading an id twice is a no-op.
func (m *Manager) LoadSession(id string) error {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()

	if store == nil {
		return fmt.Errorf("session storage disabled: %w", ErrCacheUnavailable)
	}
	if m.hasSession(id) {
		return nil
	}

	session, err := store.Load(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.history = append(m.history, session)
	m.mu.Unlock()
	logging.Info("session history loaded", "session", id, "entries", session.Len())
	return nil
}

// hasSession reports whether id names the live session or an already
// loaded history log.
func (m *Manager) hasSession(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session != nil && m.session.ID() == id {
		return true
	}
	for _, past := range m.history {
		if past.ID() == id {
			return true
		}
	}
	return false
}

// Sessions lists stored session ids.
func (m *Manager) Sessions() ([]string, error) {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()

	if store == nil {
		return nil, nil
	}
	return store.ListSessions()
}

// Stats summarizes cache composition for status displays.
type Stats struct {
	KnowledgeDocs   int
	SessionID       string
	SessionEntries  map[Kind]int
	SessionTokens   int
	TokenLimit      int
	HistorySessions int
}

// Stats reports the current cache composition.
func (m *Manager) Stats() Stats {
	st := Stats{TokenLimit: m.budget.TokenLimit}
	if kc := m.Knowledge(); kc != nil {
		st.KnowledgeDocs = kc.Len()
	}
	if s := m.Session(); s != nil {
		st.SessionID = s.ID()
		st.SessionEntries = s.Counts()
		st.SessionTokens = s.TokenEstimate()
	}
	m.mu.RLock()
	st.HistorySessions = len(m.history)
	m.mu.RUnlock()
	return st
}
