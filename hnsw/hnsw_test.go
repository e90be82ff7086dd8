package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(dim int) *HNSW {
	return New(dim, func(o *Options) {
		o.M = 8
		o.EFConstruction = 32
		o.EFSearch = 32
	})
}

func TestInsertAndKNNSearch(t *testing.T) {
	h := newTestGraph(4)
	vectors := GenerateRandomVectors(50, 4, 1)

	ids := make([]uint32, len(vectors))
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		ids[i] = id
	}

	// Ids are dense and start at 1: node 0 is the tombstoned graph seed.
	assert.Equal(t, uint32(1), ids[0])
	assert.Equal(t, len(vectors)+1, h.Len())

	pq, err := h.KNNSearch(vectors[0], 5, 32)
	require.NoError(t, err)
	assert.LessOrEqual(t, pq.Len(), 5)

	// The query vector itself should be its own closest match.
	var found bool
	for pq.Len() > 0 {
		item, _ := pq.Pop().(*PriorityQueueItem)
		if item.Node == ids[0] {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInsertDimensionMismatch(t *testing.T) {
	h := newTestGraph(4)
	_, err := h.Insert([]float32{1, 2, 3})
	require.Error(t, err)
	var dimErr *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
}

func TestSeedNodeIsTombstonedAndExcluded(t *testing.T) {
	h := newTestGraph(3)
	assert.True(t, h.IsTombstoned(0))
	assert.Nil(t, h.NodeAt(999))

	id, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, h.IsTombstoned(id))

	pq, err := h.BruteSearch([]float32{1, 0, 0}, 10)
	require.NoError(t, err)
	for pq.Len() > 0 {
		item, _ := pq.Pop().(*PriorityQueueItem)
		assert.NotEqual(t, uint32(0), item.Node)
	}
}

func TestDeleteExcludesFromSearch(t *testing.T) {
	h := newTestGraph(3)
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	ids := make([]uint32, len(vectors))
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		ids[i] = id
	}

	require.NoError(t, h.Delete(ids[0]))
	assert.True(t, h.IsTombstoned(ids[0]))

	pq, err := h.BruteSearch(vectors[0], 3)
	require.NoError(t, err)
	for pq.Len() > 0 {
		item, _ := pq.Pop().(*PriorityQueueItem)
		assert.NotEqual(t, ids[0], item.Node)
	}
}

func TestDeleteUnknownNode(t *testing.T) {
	h := newTestGraph(3)
	assert.Error(t, h.Delete(999))
	assert.False(t, h.IsTombstoned(999))
}

func TestCompactReclaimsTombstonedNodes(t *testing.T) {
	h := newTestGraph(3)
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}}

	ids := make([]uint32, len(vectors))
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		ids[i] = id
	}

	require.NoError(t, h.Delete(ids[1]))

	before := h.Len()
	remap, err := h.Compact(nil)
	require.NoError(t, err)

	// The seed node and the deleted node are both gone.
	assert.Equal(t, before-2, h.Len())
	assert.NotContains(t, remap, uint32(0))
	assert.NotContains(t, remap, ids[1])

	for _, id := range []uint32{ids[0], ids[2], ids[3]} {
		newID, ok := remap[id]
		require.True(t, ok)
		assert.False(t, h.IsTombstoned(newID))
	}

	// Every surviving node's connections only reference other survivors.
	for i := 0; i < h.Len(); i++ {
		n := h.NodeAt(uint32(i))
		require.NotNil(t, n)
		for _, level := range n.Connections {
			for _, neighbor := range level {
				assert.Less(t, int(neighbor), h.Len())
			}
		}
	}
}

func TestCompactWithExplicitLiveSet(t *testing.T) {
	h := newTestGraph(3)
	var ids []uint32
	for _, v := range [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		id, err := h.Insert(v)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	live := map[uint32]bool{ids[0]: true, ids[2]: true}
	remap, err := h.Compact(live)
	require.NoError(t, err)

	assert.Contains(t, remap, ids[0])
	assert.Contains(t, remap, ids[2])
	assert.NotContains(t, remap, ids[1])
	assert.Equal(t, 2, h.Len())
}

func TestRestoreNodeAndSetEntryState(t *testing.T) {
	h := newTestGraph(3)
	n := &Node{ID: 5, Vector: []float32{1, 2, 3}, Layer: 0, Connections: [][]uint32{{}}}
	h.RestoreNode(n)

	assert.Equal(t, 6, h.Len())
	got := h.NodeAt(5)
	require.NotNil(t, got)
	assert.Equal(t, n.Vector, got.Vector)

	h.SetEntryState(5, 2)
	assert.Equal(t, uint32(5), h.EntryPoint())
	assert.Equal(t, 2, h.MaxLevel())
}
