// Package cag assembles prompt context from two caches: a static knowledge
// corpus retrieved by similarity, and an append-only session log pruned per
// query. All sizing uses the chars/4 token heuristic, never a tokenizer.
package cag

import "time"

// Kind discriminates session log entry variants, in memory and in the
// persisted record stream.
type Kind string

const (
	KindContextItem        Kind = "context_item"
	KindDecompiledFunction Kind = "decompiled_function"
	KindRenamedEntity      Kind = "renamed_entity"
	KindAnalysisResult     Kind = "analysis_result"
)

// Entity kinds recorded on renames.
const (
	EntityFunction        = "function"
	EntityFunctionAddress = "function_address"
	EntityData            = "data"
	EntityVariable        = "variable"
)

// renameTokens is the flat size charged per rename during packing. Renames
// render as one line each, below the chars/4 resolution.
const renameTokens = 20

// EstimateTokens approximates the token count of text at four characters
// per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Entry is one session log record. Entries are never mutated after append;
// pruning shapes only the view handed to a phase, never the log itself.
type Entry interface {
	EntryKind() Kind
	Time() time.Time
	Tokens() int
}

// ContextItem is a single conversation turn.
type ContextItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

func (c ContextItem) EntryKind() Kind { return KindContextItem }
func (c ContextItem) Time() time.Time { return c.Timestamp }
func (c ContextItem) Tokens() int     { return EstimateTokens(c.Content) }

// DecompiledFunction is one decompilation capture.
type DecompiledFunction struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"-"`
}

func (d DecompiledFunction) EntryKind() Kind { return KindDecompiledFunction }
func (d DecompiledFunction) Time() time.Time { return d.Timestamp }
func (d DecompiledFunction) Tokens() int     { return EstimateTokens(d.Code) }

// RenamedEntity records one rename performed against the program.
type RenamedEntity struct {
	OldName    string    `json:"old_name"`
	NewName    string    `json:"new_name"`
	EntityKind string    `json:"kind"`
	Timestamp  time.Time `json:"-"`
}

func (r RenamedEntity) EntryKind() Kind { return KindRenamedEntity }
func (r RenamedEntity) Time() time.Time { return r.Timestamp }
func (r RenamedEntity) Tokens() int     { return renameTokens }

// AnalysisResult preserves a finished analysis together with the query and
// context that produced it.
type AnalysisResult struct {
	Query     string    `json:"query"`
	Context   string    `json:"context"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"-"`
}

func (a AnalysisResult) EntryKind() Kind { return KindAnalysisResult }
func (a AnalysisResult) Time() time.Time { return a.Timestamp }
func (a AnalysisResult) Tokens() int     { return EstimateTokens(a.Result) }

// now stamps entries in UTC so the in-memory and persisted forms compare
// equal after a round trip.
func now() time.Time {
	return time.Now().UTC()
}
