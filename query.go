package vectrix

import (
	"container/heap"
	"context"
	"encoding/json"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/hnsw"
	"github.com/vectrix-db/vectrix/metadata"
	"github.com/vectrix-db/vectrix/txn"
)

// alphaCap bounds how many times QueryItems will double its over-fetch
// factor before giving up and returning whatever it has found. Each
// doubling re-runs HNSW search with a wider candidate set, so an unbounded
// cap could turn a filtered query with very few matches into an effective
// brute-force scan.
const alphaCap = 5

// Query describes a fused vector-similarity + metadata-filter search.
type Query struct {
	// Vector is the query vector. Its length must equal the index dimension.
	Vector []float32
	// K is the number of results to return.
	K int
	// Filter, if non-nil, restricts results to items whose metadata
	// document matches the expression.
	Filter *metadata.Expr
}

// QueryResult pairs a matched item with its similarity score, where higher
// is always more similar regardless of the index's underlying metric.
type QueryResult struct {
	Item  Item
	Score float32
}

// QueryItems runs a fused similarity + metadata-filter search: an
// unfiltered query is a direct HNSW k-NN search, while a filtered query
// over-fetches min(alpha*k, n) candidates, starting at alpha = 3, and
// doubles alpha (at most alphaCap times) whenever post-filtering leaves
// fewer than k matches.
func (idx *Index) QueryItems(ctx context.Context, q Query) ([]QueryResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if q.K <= 0 {
		return nil, ErrInvalidK
	}
	if len(q.Vector) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(q.Vector)}
	}

	start := idx.now()
	results, err := idx.queryItems(ctx, q)
	idx.logger.LogQuery(ctx, q.K, idx.lastAlpha, len(results), err)
	idx.metrics.RecordSearch(q.K, idx.since(start), err)
	if err != nil {
		return nil, translateError(err)
	}
	return results, nil
}

func (idx *Index) queryItems(ctx context.Context, q Query) ([]QueryResult, error) {
	if q.Filter == nil {
		idx.lastAlpha = 1
		return idx.knnToResults(q.Vector, q.K, idx.efSearch)
	}

	if err := q.Filter.Validate(); err != nil {
		return nil, &ErrInvalidFilter{Reason: err.Error(), cause: err}
	}

	// When every field the filter touches is indexed and every operator is
	// equality, Pushdown resolves the whole expression to a bitmap up
	// front, so candidates can be accepted or rejected without decoding
	// their metadata document at all. Otherwise fall back to loading each
	// candidate's document and evaluating the filter directly.
	var pushed *metadata.LocalBitmap
	if idx.meta != nil {
		if bm, ok := idx.meta.Pushdown(*q.Filter); ok {
			pushed = bm
		}
	}

	alpha := 3
	for doublings := 0; ; doublings++ {
		idx.lastAlpha = alpha
		fetch := alpha * q.K
		if fetch > idx.graph.Len() {
			fetch = idx.graph.Len()
		}
		if fetch < q.K {
			fetch = q.K
		}

		candidates, err := idx.knnCandidates(q.Vector, fetch)
		if err != nil {
			return nil, err
		}

		matched := make([]QueryResult, 0, q.K)
		for _, c := range candidates {
			id := core.LocalID(c.Node)
			if pushed != nil && !pushed.Contains(id) {
				continue
			}
			rec, err := idx.loadMetadata(ctx, id)
			if err != nil {
				return nil, err
			}
			if pushed == nil && !q.Filter.Matches(rec.Document) {
				continue
			}
			item, err := idx.buildItem(id, rec)
			if err != nil {
				return nil, err
			}
			matched = append(matched, QueryResult{Item: item, Score: idx.score(c.Distance)})
			if len(matched) == q.K {
				return matched, nil
			}
		}

		if len(matched) >= q.K || fetch >= idx.graph.Len() || doublings >= alphaCap {
			return matched, nil
		}
		alpha *= 2
	}
}

// knnCandidates runs a raw HNSW search and returns candidates ordered
// closest-first, without any metadata lookups.
func (idx *Index) knnCandidates(vector []float32, k int) ([]*hnsw.PriorityQueueItem, error) {
	efSearch := idx.efSearch
	if efSearch < k {
		efSearch = k
	}
	pq, err := idx.graph.KNNSearch(vector, k, efSearch)
	if err != nil {
		return nil, err
	}
	return drainAscending(pq), nil
}

func (idx *Index) knnToResults(vector []float32, k, efSearch int) ([]QueryResult, error) {
	candidates, err := idx.knnCandidates(vector, k)
	if err != nil {
		return nil, err
	}

	out := make([]QueryResult, 0, len(candidates))
	for _, c := range candidates {
		id := core.LocalID(c.Node)
		rec, err := idx.loadMetadata(context.Background(), id)
		if err != nil {
			return nil, err
		}
		item, err := idx.buildItem(id, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, QueryResult{Item: item, Score: idx.score(c.Distance)})
	}
	return out, nil
}

// drainAscending pops every item out of a max-heap PriorityQueue and
// returns them ordered closest-first.
func drainAscending(pq *hnsw.PriorityQueue) []*hnsw.PriorityQueueItem {
	n := pq.Len()
	out := make([]*hnsw.PriorityQueueItem, n)
	for i := n - 1; i >= 0; i-- {
		out[i], _ = heap.Pop(pq).(*hnsw.PriorityQueueItem)
	}
	return out
}

func (idx *Index) loadMetadata(ctx context.Context, id core.LocalID) (txn.Record, error) {
	data, err := idx.backend.GetMetadata(ctx, id)
	if err != nil {
		return txn.Record{}, err
	}
	var rec txn.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return txn.Record{}, err
	}
	return rec, nil
}

func (idx *Index) buildItem(id core.LocalID, rec txn.Record) (Item, error) {
	node := idx.graph.NodeAt(uint32(id))
	if node == nil {
		return Item{}, ErrNotFound
	}
	return Item{ID: rec.ItemID, Vector: node.Vector, Metadata: rec.Document, Version: rec.Version, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
}
