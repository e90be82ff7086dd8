package hnsw

// PriorityQueueItem is a single entry in a PriorityQueue: a graph node paired
// with its distance to the query or reference vector that produced it.
type PriorityQueueItem struct {
	Node     uint32
	Distance float32
}

// PriorityQueue implements container/heap.Interface over PriorityQueueItem.
//
// Order controls the heap direction: false gives a min-heap (Top returns the
// closest item), true gives a max-heap (Top returns the farthest item). HNSW
// search alternates between both within a single traversal, so the field is
// exported and mutated in place rather than fixed at construction.
type PriorityQueue struct {
	items []*PriorityQueueItem
	Order bool
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Less reports whether item i should sort before item j given Order. Ties
// in distance are broken by lower node id, so that repeated searches over
// identical state always produce the same ordering.
func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if a.Distance == b.Distance {
		if pq.Order {
			return a.Node > b.Node
		}
		return a.Node < b.Node
	}
	if pq.Order {
		return a.Distance > b.Distance
	}
	return a.Distance < b.Distance
}

// Swap exchanges items i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push appends x to the queue. Use container/heap.Push, not this method directly.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	pq.items = append(pq.items, item)
}

// Pop removes and returns the last item in heap order. Use container/heap.Pop.
func (pq *PriorityQueue) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	pq.items = old[:n-1]
	return item
}

// Top returns the item at the head of the queue without removing it.
// Returns nil if the queue is empty.
func (pq *PriorityQueue) Top() any {
	if len(pq.items) == 0 {
		return nil
	}
	return pq.items[0]
}
