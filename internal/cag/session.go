package cag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"godra/internal/logging"
)

const (
	// analysisOverlapThreshold admits a past analysis into the pruned view
	// only when its query shares this much word overlap with the current one.
	analysisOverlapThreshold = 0.3

	// similarAnalysisThreshold is the stricter bar for reusing a past
	// analysis verbatim.
	similarAnalysisThreshold = 0.7

	// contextWindow bounds how many trailing conversation turns Prune
	// considers.
	contextWindow = 10

	// maxCodeLines bounds rendered decompilations; longer bodies keep the
	// head and tail around a trim marker.
	maxCodeLines = 30
)

// SessionCache is the append-only log of everything learned during one
// session. Appends are cheap; relevance filtering happens at read time in
// Prune. Safe for concurrent use, though a session is normally owned by a
// single loop.
type SessionCache struct {
	mu  sync.RWMutex
	id  string
	log []Entry
}

// NewSessionCache starts an empty session log. An empty id gets a fresh
// uuid.
func NewSessionCache(id string) *SessionCache {
	if id == "" {
		id = uuid.NewString()
	}
	return &SessionCache{id: id}
}

// ID returns the session identifier used as the persistence key.
func (s *SessionCache) ID() string {
	return s.id
}

// Len returns the number of log entries.
func (s *SessionCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Entries returns a copy of the full log in append order.
func (s *SessionCache) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.log))
	copy(out, s.log)
	return out
}

// Counts reports log composition per entry kind.
func (s *SessionCache) Counts() map[Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Kind]int, 4)
	for _, e := range s.log {
		counts[e.EntryKind()]++
	}
	return counts
}

// TokenEstimate sums the estimated token size of the full log.
func (s *SessionCache) TokenEstimate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.log {
		total += e.Tokens()
	}
	return total
}

func (s *SessionCache) appendEntry(e Entry) {
	s.mu.Lock()
	s.log = append(s.log, e)
	s.mu.Unlock()
}

// AddContextItem appends one conversation turn.
func (s *SessionCache) AddContextItem(role, content string) {
	s.appendEntry(ContextItem{Role: role, Content: content, Timestamp: now()})
	logging.Debug("cached context item", "role", role, "tokens", EstimateTokens(content))
}

// AddDecompiledFunction appends a decompilation capture. A repeat capture
// of an address with changed code also records a compact line-diff summary
// so later analyses can cite what changed.
func (s *SessionCache) AddDecompiledFunction(address, name, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := captureKey(address, name)
	for i := len(s.log) - 1; i >= 0; i-- {
		prev, ok := s.log[i].(DecompiledFunction)
		if !ok || captureKey(prev.Address, prev.Name) != key {
			continue
		}
		if prev.Code != code {
			delta := CodeDelta(prev.Code, code)
			s.log = append(s.log, ContextItem{
				Role:      "system",
				Content:   fmt.Sprintf("Function %s at %s re-decompiled (%s since last capture)", name, address, delta),
				Timestamp: now(),
			})
			logging.Debug("function re-decompiled", "address", address, "name", name, "delta", delta)
		}
		break
	}

	s.log = append(s.log, DecompiledFunction{Address: address, Name: name, Code: code, Timestamp: now()})
}

// captureKey identifies a function across captures: the address when
// known, the name otherwise. Name-only captures happen when a function
// is decompiled by name and nothing has pinned its address yet.
func captureKey(address, name string) string {
	if address != "" {
		return address
	}
	return "name:" + name
}

// AddRenamedEntity appends a rename record. An empty entityKind is inferred
// from the old identifier: pure hex means an address rename.
func (s *SessionCache) AddRenamedEntity(oldName, newName, entityKind string) {
	if entityKind == "" {
		entityKind = inferEntityKind(oldName)
	}
	s.appendEntry(RenamedEntity{OldName: oldName, NewName: newName, EntityKind: entityKind, Timestamp: now()})
	logging.Debug("cached rename", "kind", entityKind, "old", oldName, "new", newName)
}

// AddAnalysisResult appends a finished analysis.
func (s *SessionCache) AddAnalysisResult(query, context, result string) {
	s.appendEntry(AnalysisResult{Query: query, Context: context, Result: result, Timestamp: now()})
	logging.Debug("cached analysis", "query", head(query, 50), "tokens", EstimateTokens(result))
}

// FunctionByAddress returns the most recent capture for an address.
func (s *SessionCache) FunctionByAddress(address string) (DecompiledFunction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if f, ok := s.log[i].(DecompiledFunction); ok && f.Address == address {
			return f, true
		}
	}
	return DecompiledFunction{}, false
}

// FunctionByName returns the most recent capture with the given name.
func (s *SessionCache) FunctionByName(name string) (DecompiledFunction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if f, ok := s.log[i].(DecompiledFunction); ok && f.Name == name {
			return f, true
		}
	}
	return DecompiledFunction{}, false
}

// FunctionVersions returns every capture of a function in log order,
// oldest first. The argument matches either the name or the address, so
// callers can diff captures taken before and after a rename.
func (s *SessionCache) FunctionVersions(nameOrAddress string) []DecompiledFunction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var versions []DecompiledFunction
	for _, e := range s.log {
		if f, ok := e.(DecompiledFunction); ok && (f.Name == nameOrAddress || f.Address == nameOrAddress) {
			versions = append(versions, f)
		}
	}
	return versions
}

// FindSimilarAnalysis returns the result of the past analysis whose query
// overlaps the given one most strongly, provided the overlap clears
// similarAnalysisThreshold.
func (s *SessionCache) FindSimilarAnalysis(query string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, e := range s.log {
		a, ok := e.(AnalysisResult)
		if !ok {
			continue
		}
		score := wordOverlap(query, a.Query)
		if score > similarAnalysisThreshold && score > bestScore {
			bestScore = score
			best = a.Result
			found = true
		}
	}
	return best, found
}

// Prune assembles the bounded view of the log most relevant to query.
// Candidates are ranked by similarity then recency and packed greedily
// while the running chars/4 estimate stays within tokenBudget:
//
//  1. trailing conversation turns, most recent first, emitted in original
//     order; the walk stops at the first turn that does not fit;
//  2. past analyses whose queries overlap the current one, newest first;
//  3. functions named in the query, then the rest, both newest first, one
//     capture per address;
//  4. renames, charged a flat line each.
//
// If nothing fits but a candidate exists, the highest-ranked candidate is
// included truncated to the budget instead of returning nothing.
func (s *SessionCache) Prune(query string, tokenBudget int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tokenBudget <= 0 || len(s.log) == 0 {
		return nil
	}

	var (
		view  []Entry
		total int
		first Entry
	)
	fits := func(tokens int) bool { return total+tokens <= tokenBudget }
	note := func(e Entry) {
		if first == nil {
			first = e
		}
	}

	recent := s.contextTail(contextWindow)
	keepFrom := len(recent)
	for i := len(recent) - 1; i >= 0; i-- {
		note(recent[i])
		if !fits(recent[i].Tokens()) {
			break
		}
		total += recent[i].Tokens()
		keepFrom = i
	}
	for _, item := range recent[keepFrom:] {
		view = append(view, item)
	}

	for _, a := range s.analysesByRecency() {
		if wordOverlap(query, a.Query) <= analysisOverlapThreshold {
			continue
		}
		note(a)
		if fits(a.Tokens()) {
			view = append(view, a)
			total += a.Tokens()
		}
	}

	funcs := s.functionsByRecency()
	included := make(map[string]bool, len(funcs))
	queryLower := strings.ToLower(query)
	for _, f := range funcs {
		if f.Name == "" || !strings.Contains(queryLower, strings.ToLower(f.Name)) {
			continue
		}
		note(f)
		if fits(f.Tokens()) {
			view = append(view, f)
			included[captureKey(f.Address, f.Name)] = true
			total += f.Tokens()
		}
	}
	for _, f := range funcs {
		if included[captureKey(f.Address, f.Name)] {
			continue
		}
		note(f)
		if fits(f.Tokens()) {
			view = append(view, f)
			included[captureKey(f.Address, f.Name)] = true
			total += f.Tokens()
		}
	}

	for _, r := range s.renamesInOrder() {
		note(r)
		if fits(r.Tokens()) {
			view = append(view, r)
			total += r.Tokens()
		}
	}

	if len(view) == 0 && first != nil {
		view = append(view, truncateEntry(first, tokenBudget))
	}

	logging.Debug("pruned session view", "entries", len(view), "tokens", total, "budget", tokenBudget)
	return view
}

// contextTail returns the last n conversation turns in log order. Caller
// holds mu.
func (s *SessionCache) contextTail(n int) []ContextItem {
	var items []ContextItem
	for _, e := range s.log {
		if c, ok := e.(ContextItem); ok {
			items = append(items, c)
		}
	}
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return items
}

// analysesByRecency returns analyses newest first, ties in log order.
// Caller holds mu.
func (s *SessionCache) analysesByRecency() []AnalysisResult {
	var analyses []AnalysisResult
	for _, e := range s.log {
		if a, ok := e.(AnalysisResult); ok {
			analyses = append(analyses, a)
		}
	}
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].Timestamp.After(analyses[j].Timestamp)
	})
	return analyses
}

// functionsByRecency returns the latest capture per function, newest first,
// ties in log order. Caller holds mu.
func (s *SessionCache) functionsByRecency() []DecompiledFunction {
	idx := make(map[string]int)
	var funcs []DecompiledFunction
	for _, e := range s.log {
		f, ok := e.(DecompiledFunction)
		if !ok {
			continue
		}
		key := captureKey(f.Address, f.Name)
		if i, seen := idx[key]; seen {
			funcs[i] = f
		} else {
			idx[key] = len(funcs)
			funcs = append(funcs, f)
		}
	}
	sort.SliceStable(funcs, func(i, j int) bool {
		return funcs[i].Timestamp.After(funcs[j].Timestamp)
	})
	return funcs
}

// renamesInOrder returns the latest rename per old identifier, kept at its
// first-seen position. Caller holds mu.
func (s *SessionCache) renamesInOrder() []RenamedEntity {
	idx := make(map[string]int)
	var renames []RenamedEntity
	for _, e := range s.log {
		r, ok := e.(RenamedEntity)
		if !ok {
			continue
		}
		if i, seen := idx[r.OldName]; seen {
			renames[i] = r
		} else {
			idx[r.OldName] = len(renames)
			renames = append(renames, r)
		}
	}
	return renames
}

// truncateEntry copies e with its body cut to fit budget tokens. The log
// entry itself is never modified.
func truncateEntry(e Entry, budget int) Entry {
	maxChars := budget * 4
	switch v := e.(type) {
	case ContextItem:
		v.Content = truncate(v.Content, maxChars)
		return v
	case DecompiledFunction:
		v.Code = truncate(v.Code, maxChars)
		return v
	case AnalysisResult:
		v.Result = truncate(v.Result, maxChars)
		return v
	}
	return e
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

// FormatEntries renders a pruned view as the session block of a prompt.
// Sections appear only when populated: conversation, decompiled functions,
// renames, analyses.
func FormatEntries(entries []Entry) string {
	var (
		contexts []ContextItem
		funcs    []DecompiledFunction
		renames  []RenamedEntity
		analyses []AnalysisResult
	)
	for _, e := range entries {
		switch v := e.(type) {
		case ContextItem:
			contexts = append(contexts, v)
		case DecompiledFunction:
			funcs = append(funcs, v)
		case RenamedEntity:
			renames = append(renames, v)
		case AnalysisResult:
			analyses = append(analyses, v)
		}
	}

	var sections []string

	if len(contexts) > 0 {
		var b strings.Builder
		b.WriteString("## Recent Conversation:\n\n")
		for _, c := range contexts {
			content := strings.ReplaceAll(c.Content, "\n", "\n  ")
			fmt.Fprintf(&b, "**%s**: %s\n\n", capitalize(c.Role), content)
		}
		sections = append(sections, b.String())
	}

	if len(funcs) > 0 {
		var b strings.Builder
		b.WriteString("## Previously Decompiled Functions:\n\n")
		for _, f := range funcs {
			fmt.Fprintf(&b, "### Function: %s (address: %s)\n\n", f.Name, f.Address)
			b.WriteString("```c\n")
			b.WriteString(trimCode(f.Code, maxCodeLines))
			b.WriteString("\n```\n\n")
		}
		sections = append(sections, b.String())
	}

	if len(renames) > 0 {
		var b strings.Builder
		b.WriteString("## Entity Renames Performed:\n\n")
		for _, r := range renames {
			fmt.Fprintf(&b, "* %s: `%s` → `%s`\n", capitalize(r.EntityKind), r.OldName, r.NewName)
		}
		sections = append(sections, b.String())
	}

	if len(analyses) > 0 {
		var b strings.Builder
		b.WriteString("## Previous Analyses:\n\n")
		for i, a := range analyses {
			fmt.Fprintf(&b, "### Analysis %d: %s...\n\n", i+1, head(a.Query, 50))
			b.WriteString(a.Result)
			b.WriteString("\n\n")
		}
		sections = append(sections, b.String())
	}

	return strings.Join(sections, "\n")
}

// trimCode keeps the head and tail of code bodies longer than maxLines,
// marking the cut.
func trimCode(code string, maxLines int) string {
	lines := strings.Split(code, "\n")
	if len(lines) <= maxLines {
		return code
	}
	top := lines[:maxLines/2]
	bottom := lines[len(lines)-maxLines/2:]
	return strings.Join(top, "\n") + "\n// ... [trimmed] ...\n" + strings.Join(bottom, "\n")
}

// CodeDelta summarizes the line-level difference between two code captures
// as "+N/-N lines".
func CodeDelta(before, after string) string {
	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lines)

	var added, removed int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return fmt.Sprintf("+%d/-%d lines", added, removed)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// wordOverlap is Jaccard similarity over lowercased whitespace-split words.
func wordOverlap(a, b string) float64 {
	aw := wordSet(a)
	bw := wordSet(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	inter := 0
	union := len(bw)
	for w := range aw {
		if _, ok := bw[w]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// inferEntityKind distinguishes address renames from name renames by shape.
func inferEntityKind(oldNameOrAddress string) string {
	hexPart := strings.TrimPrefix(oldNameOrAddress, "0x")
	if hexPart == "" {
		return EntityFunction
	}
	for _, r := range hexPart {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return EntityFunction
		}
	}
	return EntityFunctionAddress
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
