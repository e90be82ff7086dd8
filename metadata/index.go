package metadata

import (
	"sync"

	"github.com/vectrix-db/vectrix/core"
)

// FieldIndex maintains one LocalBitmap per (path, value) pair for every
// dotted path declared in a Config's Indexed list. It gives the query
// engine equality pushdown: instead of fetching and evaluating a filter
// against every candidate's document, it intersects bitmaps to answer
// "which items have field == value" directly.
//
// Only equality is pushed down. Range and existence operators still fall
// back to a post-fetch scan against the stored document; the bitmap index
// is a candidate-set accelerator, not a full secondary index.
type FieldIndex struct {
	mu     sync.RWMutex
	config Config
	// byPath[path][value.Key()] -> ids with that value at path.
	byPath map[string]map[string]*LocalBitmap
}

// Config returns the configuration the index was created with.
func (fi *FieldIndex) Config() Config { return fi.config }

// NewFieldIndex creates an empty index for the given config.
func NewFieldIndex(config Config) *FieldIndex {
	byPath := make(map[string]map[string]*LocalBitmap, len(config.Indexed))
	for _, p := range config.Indexed {
		byPath[p] = make(map[string]*LocalBitmap)
	}
	return &FieldIndex{config: config, byPath: byPath}
}

// Add indexes doc's values at every configured path for id.
func (fi *FieldIndex) Add(id core.LocalID, doc Document) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	for _, path := range fi.config.Indexed {
		value, ok := doc.Get(path)
		if !ok {
			continue
		}
		bucket := fi.byPath[path]
		key := value.Key()
		bm, ok := bucket[key]
		if !ok {
			bm = NewLocalBitmap()
			bucket[key] = bm
		}
		bm.Add(id)
	}
}

// Remove clears id from every bucket it was indexed under for doc.
func (fi *FieldIndex) Remove(id core.LocalID, doc Document) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	for _, path := range fi.config.Indexed {
		value, ok := doc.Get(path)
		if !ok {
			continue
		}
		bucket := fi.byPath[path]
		if bm, ok := bucket[value.Key()]; ok {
			bm.Remove(id)
		}
	}
}

// Lookup returns the bitmap of ids matching path == value, and whether path
// is indexed at all. An empty bitmap with true means path is indexed but no
// item currently has that value.
func (fi *FieldIndex) Lookup(path string, value Value) (*LocalBitmap, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	bucket, indexed := fi.byPath[path]
	if !indexed {
		return nil, false
	}
	bm, ok := bucket[value.Key()]
	if !ok {
		return NewLocalBitmap(), true
	}
	return bm.Clone(), true
}

// Pushdown attempts to resolve an equality-only Expr subtree entirely from
// the bitmap index, returning the matching id set and true. It returns
// false when any part of the expression touches an unindexed path or a
// non-equality operator, signaling the caller to fall back to a post-fetch
// scan for (at least) that subtree.
func (fi *FieldIndex) Pushdown(e Expr) (*LocalBitmap, bool) {
	switch e.Op {
	case ExprEq:
		return fi.Lookup(e.Key, e.Value)
	case ExprAnd:
		var result *LocalBitmap
		for _, c := range e.Children {
			bm, ok := fi.Pushdown(c)
			if !ok {
				return nil, false
			}
			if result == nil {
				result = bm
				continue
			}
			result.And(bm)
		}
		if result == nil {
			return nil, false
		}
		return result, true
	case ExprOr:
		result := NewLocalBitmap()
		for _, c := range e.Children {
			bm, ok := fi.Pushdown(c)
			if !ok {
				return nil, false
			}
			result.Or(bm)
		}
		return result, true
	default:
		return nil, false
	}
}
