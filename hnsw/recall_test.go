package hnsw

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecallAgainstBruteForce checks that approximate k-NN search agrees
// with an exhaustive brute-force scan often enough to be useful: for a
// modest, well-connected graph, at least 95% of the ids KNNSearch returns
// should also appear in BruteSearch's exact top-k for the same query.
func TestRecallAgainstBruteForce(t *testing.T) {
	const (
		numVectors = 500
		dim        = 16
		k          = 10
		numQueries = 20
	)

	graph := New(dim, func(o *Options) {
		o.M = 16
		o.EFConstruction = 100
		o.EFSearch = 100
	})

	vectors := GenerateRandomVectors(numVectors, dim, 42)
	for _, v := range vectors {
		_, err := graph.Insert(v)
		require.NoError(t, err)
	}

	queries := GenerateRandomVectors(numQueries, dim, 7)

	var hits, total int
	for _, q := range queries {
		approx, err := graph.KNNSearch(q, k, 100)
		require.NoError(t, err)
		exact, err := graph.BruteSearch(q, k)
		require.NoError(t, err)

		approxIDs := idSet(approx)
		exactIDs := idSet(exact)

		for id := range approxIDs {
			total++
			if exactIDs[id] {
				hits++
			}
		}
	}

	recall := float64(hits) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.95, "recall@%d was %.3f, want >= 0.95", k, recall)
}

func idSet(pq *PriorityQueue) map[uint32]bool {
	set := make(map[uint32]bool, pq.Len())
	for pq.Len() > 0 {
		item, _ := heap.Pop(pq).(*PriorityQueueItem)
		set[item.Node] = true
	}
	return set
}
