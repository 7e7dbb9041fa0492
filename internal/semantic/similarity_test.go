package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSearchOrdersByScoreDescending(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},          // orthogonal, score 0
		{1, 0},          // identical, score 1
		{0.7071, 0.7071}, // 45 degrees, score ~0.7071
	}

	results := Search(query, corpus, 3)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
	assert.True(t, results[0].Score >= results[1].Score)
	assert.True(t, results[1].Score >= results[2].Score)
}

func TestSearchTiesKeepCorpusOrder(t *testing.T) {
	query := []float32{1, 0}
	// All three score identically against the query.
	corpus := [][]float32{
		{2, 0},
		{5, 0},
		{1, 0},
	}

	results := Search(query, corpus, 3)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, 2, results[2].Index)
}

func TestSearchTopKBounds(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{{1, 0}, {0, 1}}

	assert.Nil(t, Search(query, corpus, 0))
	assert.Nil(t, Search(query, nil, 3))
	assert.Len(t, Search(query, corpus, 5), 2)
	assert.Len(t, Search(query, corpus, 1), 1)
}

func TestSearchRepeatedCallsIdentical(t *testing.T) {
	query := []float32{0.3, 0.9, 0.1}
	corpus := [][]float32{
		{0.1, 0.8, 0.2},
		{0.9, 0.1, 0.3},
		{0.3, 0.9, 0.1},
		{0.2, 0.7, 0.4},
	}

	first := Search(query, corpus, 3)
	second := Search(query, corpus, 3)
	assert.Equal(t, first, second)
}
