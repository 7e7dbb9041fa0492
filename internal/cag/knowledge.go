package cag

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"godra/internal/logging"
	"godra/internal/semantic"
)

const defaultTopK = 3

// Document types produced by the corpus loader.
const (
	DocFunction = "function"
	DocPattern  = "pattern"
	DocRule     = "rule"
	DocWorkflow = "workflow"
	DocNote     = "note"
)

// Document is one retrievable unit of the static knowledge corpus.
type Document struct {
	Text      string
	Type      string
	Name      string
	Embedding []float32
}

// KnowledgeCache serves top-K retrieval over a static document corpus. The
// corpus is immutable after construction; reloading means building a new
// cache and swapping it in on the Manager.
type KnowledgeCache struct {
	docs     []Document
	embedder semantic.Embedder
	topK     int
}

// LoadKnowledge builds a corpus from the files under dir matched by the
// glob patterns. JSON files contribute structured knowledge (function
// signatures, binary patterns, analysis rules, workflows); Markdown files
// are kept whole as notes. With a non-nil embedder every document is
// embedded up front, consulting cache to skip unchanged text; embedding
// failure degrades retrieval to sampling instead of failing the load.
func LoadKnowledge(ctx context.Context, dir string, patterns []string, embedder semantic.Embedder, cache *semantic.EmbeddingCache, topK int) (*KnowledgeCache, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	kc := &KnowledgeCache{embedder: embedder, topK: topK}
	if dir == "" {
		return kc, nil
	}

	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid knowledge pattern %q: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true

		docs, err := loadDocumentFile(path)
		if err != nil {
			logging.Warn("skipping knowledge file", "path", path, "error", err)
			continue
		}
		kc.docs = append(kc.docs, docs...)
	}

	if embedder != nil && len(kc.docs) > 0 {
		if err := kc.embedAll(ctx, cache); err != nil {
			logging.Warn("embedding knowledge corpus failed, retrieval degrades to sampling", "error", err)
			for i := range kc.docs {
				kc.docs[i].Embedding = nil
			}
		}
	}

	logging.Info("knowledge corpus loaded", "dir", dir, "documents", len(kc.docs))
	return kc, nil
}

// Len returns the corpus size.
func (kc *KnowledgeCache) Len() int {
	return len(kc.docs)
}

// Retrieve returns the knowledge block for a query: the top-K most similar
// documents rendered under "## {TYPE}: {name}" headers, packed into
// tokenBudget*4 characters. An over-large first document is truncated
// rather than dropped. Without embeddings the same number of documents is
// sampled pseudo-randomly, seeded from the query so repeated calls agree.
func (kc *KnowledgeCache) Retrieve(ctx context.Context, query string, tokenBudget int) string {
	if len(kc.docs) == 0 || tokenBudget <= 0 {
		return ""
	}

	docs := kc.rank(ctx, query)
	if len(docs) == 0 {
		return ""
	}

	charLimit := tokenBudget * 4
	var sections []string
	totalChars := 0
	for _, doc := range docs {
		header := fmt.Sprintf("## %s: %s\n", strings.ToUpper(doc.Type), doc.Name)
		if totalChars+len(header)+len(doc.Text) > charLimit {
			if len(sections) == 0 {
				keep := charLimit - len(header) - 3
				sections = append(sections, header+"\n"+truncate(doc.Text, keep)+"...")
			}
			break
		}
		sections = append(sections, header+"\n"+doc.Text)
		totalChars += len(header) + len(doc.Text)
	}
	return strings.Join(sections, "\n\n")
}

// rank orders the corpus for a query: cosine top-K through the embedder,
// or the seeded sample when the backend is missing or failing.
func (kc *KnowledgeCache) rank(ctx context.Context, query string) []Document {
	k := kc.topK
	if k > len(kc.docs) {
		k = len(kc.docs)
	}

	if kc.embedder == nil || !kc.embedded() {
		return kc.sample(query, k)
	}

	queryEmbedding, err := kc.embedder.Embed(ctx, query)
	if err != nil {
		logging.Warn("query embedding failed, sampling knowledge instead", "error", err)
		return kc.sample(query, k)
	}

	corpus := make([][]float32, len(kc.docs))
	for i, doc := range kc.docs {
		corpus[i] = doc.Embedding
	}

	results := semantic.Search(queryEmbedding, corpus, k)
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, kc.docs[r.Index])
	}
	return docs
}

func (kc *KnowledgeCache) embedded() bool {
	for _, doc := range kc.docs {
		if len(doc.Embedding) == 0 {
			return false
		}
	}
	return len(kc.docs) > 0
}

// sample is the degraded retrieval path: k documents drawn without
// replacement from a generator seeded by the query hash, so the sample is
// stable per query.
func (kc *KnowledgeCache) sample(query string, k int) []Document {
	h := fnv.New64a()
	h.Write([]byte(query))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	docs := make([]Document, 0, k)
	for _, i := range rng.Perm(len(kc.docs))[:k] {
		docs = append(docs, kc.docs[i])
	}
	return docs
}

// embedAll fills document embeddings, reusing cached vectors for unchanged
// text and embedding the rest in one batch pass.
func (kc *KnowledgeCache) embedAll(ctx context.Context, cache *semantic.EmbeddingCache) error {
	var missing []int
	for i, doc := range kc.docs {
		if cache != nil {
			if emb, ok := cache.Get(docKey(doc), semantic.ContentHash(doc.Text)); ok {
				kc.docs[i].Embedding = emb
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for i, idx := range missing {
		texts[i] = kc.docs[idx].Text
	}

	embeddings, err := kc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d for %d documents", len(embeddings), len(texts))
	}

	for i, idx := range missing {
		kc.docs[idx].Embedding = embeddings[i]
		if cache != nil {
			cache.Set(docKey(kc.docs[idx]), embeddings[i], semantic.ContentHash(kc.docs[idx].Text))
		}
	}
	if cache != nil {
		if err := cache.Save(); err != nil {
			logging.Warn("saving embedding cache failed", "error", err)
		}
	}
	return nil
}

func docKey(doc Document) string {
	return doc.Type + "/" + doc.Name
}

// knowledgeFile mirrors the on-disk JSON schema. All top-level sections are
// optional; a file may carry any mix.
type knowledgeFile struct {
	FunctionSignatures map[string]functionSignature `json:"function_signatures"`
	BinaryPatterns     map[string]binaryPattern     `json:"binary_patterns"`
	AnalysisRules      map[string]analysisRule      `json:"analysis_rules"`
	CommonWorkflows    map[string]string            `json:"common_workflows"`
}

type functionSignature struct {
	Description      string            `json:"description"`
	Parameters       map[string]string `json:"parameters"`
	ReturnType       string            `json:"return_type"`
	CommonLocations  []string          `json:"common_locations"`
	RelatedFunctions []string          `json:"related_functions"`
}

type binaryPattern struct {
	Description  string `json:"description"`
	BytePattern  string `json:"byte_pattern"`
	Architecture string `json:"architecture"`
}

type analysisRule struct {
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	Action      string   `json:"action"`
	Examples    []string `json:"examples"`
}

func loadDocumentFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseKnowledgeJSON(data)
	case ".md", ".markdown":
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return []Document{{Text: strings.TrimSpace(string(data)), Type: DocNote, Name: name}}, nil
	default:
		return nil, fmt.Errorf("unsupported knowledge file type: %s", filepath.Ext(path))
	}
}

func parseKnowledgeJSON(data []byte) ([]Document, error) {
	var file knowledgeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var docs []Document
	for _, name := range sortedKeys(file.FunctionSignatures) {
		docs = append(docs, Document{
			Type: DocFunction,
			Name: name,
			Text: formatSignature(name, file.FunctionSignatures[name]),
		})
	}
	for _, name := range sortedKeys(file.BinaryPatterns) {
		docs = append(docs, Document{
			Type: DocPattern,
			Name: name,
			Text: formatPattern(file.BinaryPatterns[name]),
		})
	}
	for _, name := range sortedKeys(file.AnalysisRules) {
		docs = append(docs, Document{
			Type: DocRule,
			Name: name,
			Text: formatRule(file.AnalysisRules[name]),
		})
	}
	for _, name := range sortedKeys(file.CommonWorkflows) {
		docs = append(docs, Document{
			Type: DocWorkflow,
			Name: name,
			Text: strings.TrimSpace(file.CommonWorkflows[name]),
		})
	}
	return docs, nil
}

func formatSignature(name string, sig functionSignature) string {
	params := make([]string, 0, len(sig.Parameters))
	for _, p := range sortedKeys(sig.Parameters) {
		params = append(params, p+": "+sig.Parameters[p])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) -> %s\n\n%s", name, strings.Join(params, ", "), sig.ReturnType, sig.Description)
	if len(sig.CommonLocations) > 0 {
		fmt.Fprintf(&b, "\n\nCommon locations: %s", strings.Join(sig.CommonLocations, ", "))
	}
	if len(sig.RelatedFunctions) > 0 {
		fmt.Fprintf(&b, "\nRelated functions: %s", strings.Join(sig.RelatedFunctions, ", "))
	}
	return b.String()
}

func formatPattern(p binaryPattern) string {
	return fmt.Sprintf("%s\n\nArchitecture: %s\nByte pattern: `%s`", p.Description, p.Architecture, p.BytePattern)
}

func formatRule(r analysisRule) string {
	var b strings.Builder
	b.WriteString(r.Description)
	fmt.Fprintf(&b, "\n\nCondition: %s\nAction: %s", r.Condition, r.Action)
	if len(r.Examples) > 0 {
		fmt.Fprintf(&b, "\nExamples: %s", strings.Join(r.Examples, "; "))
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
