package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanStorePopsInOrder(t *testing.T) {
	p := NewPlanStore()
	p.Replace([]PlannedCall{
		{Tool: "list-functions"},
		{Tool: "decompile-by-name", Parameters: map[string]any{"name": "main"}},
		{Tool: "rename-by-name"},
	})
	require.Equal(t, 3, p.Len())

	head, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, "list-functions", head.Tool)
	assert.Equal(t, 2, p.Len())

	head, ok = p.Pop()
	require.True(t, ok)
	assert.Equal(t, "decompile-by-name", head.Tool)
	assert.Equal(t, "main", head.Parameters["name"])

	head, ok = p.Pop()
	require.True(t, ok)
	assert.Equal(t, "rename-by-name", head.Tool)

	_, ok = p.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len())
}

func TestPlanStoreReplaceCopiesInput(t *testing.T) {
	calls := []PlannedCall{{Tool: "list-functions"}, {Tool: "list-imports"}}
	p := NewPlanStore()
	p.Replace(calls)

	calls[0].Tool = "mutated"

	head, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, "list-functions", head.Tool)
}

func TestPlanStoreSnapshotIsACopy(t *testing.T) {
	p := NewPlanStore()
	p.Replace([]PlannedCall{{Tool: "list-functions"}, {Tool: "list-exports"}})

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	snap[0].Tool = "mutated"

	again := p.Snapshot()
	assert.Equal(t, "list-functions", again[0].Tool)
	assert.Equal(t, 2, p.Len())
}

func TestPlanStoreClear(t *testing.T) {
	p := NewPlanStore()
	p.Replace([]PlannedCall{{Tool: "list-functions"}})

	p.Clear()

	assert.Equal(t, 0, p.Len())
	_, ok := p.Pop()
	assert.False(t, ok)
}

func TestPlanStoreReplaceSwapsQueue(t *testing.T) {
	p := NewPlanStore()
	p.Replace([]PlannedCall{{Tool: "list-functions"}, {Tool: "list-imports"}})
	p.Replace([]PlannedCall{{Tool: "get-current-function"}})

	require.Equal(t, 1, p.Len())
	head, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, "get-current-function", head.Tool)
}
