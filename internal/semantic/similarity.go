package semantic

import (
	"math"
	"sort"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// SearchResult pairs a corpus index with its similarity score.
type SearchResult struct {
	Index int     // Position in the searched corpus
	Score float32 // Cosine similarity against the query
}

// SearchResults is a sortable slice of SearchResult.
type SearchResults []SearchResult

func (r SearchResults) Len() int           { return len(r) }
func (r SearchResults) Less(i, j int) bool { return r[i].Score > r[j].Score } // Descending by score
func (r SearchResults) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }

// Search ranks every corpus vector against the query and returns the topK
// best matches in descending score order. Ties keep the original corpus
// order. The corpus is never modified.
func Search(query []float32, corpus [][]float32, topK int) []SearchResult {
	if topK <= 0 || len(corpus) == 0 {
		return nil
	}

	results := make(SearchResults, len(corpus))
	for i, vec := range corpus {
		results[i] = SearchResult{Index: i, Score: CosineSimilarity(query, vec)}
	}

	// Stable keeps insertion order for equal scores.
	sort.Stable(results)

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}
