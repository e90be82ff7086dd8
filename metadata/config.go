package metadata

// DefaultMaxSizeBytes bounds a single document's serialized metadata size
// when no explicit Config.MaxSizeBytes is set.
const DefaultMaxSizeBytes = 1 << 20 // 1 MiB

// Config controls how an index treats item metadata: which fields get a
// bitmap index for pushdown filtering and how large one document may be.
// Fields outside Indexed are still stored and filtered (just without
// pushdown).
type Config struct {
	// Indexed lists dotted paths that get a bitmap index for equality
	// pushdown. Filters on any other path are evaluated post-fetch.
	Indexed []string

	// Stored is recorded on the config but not read by the index: the full
	// metadata document is always retained and returned with results.
	Stored bool

	// MaxSizeBytes caps a single document's serialized size. Zero means
	// DefaultMaxSizeBytes.
	MaxSizeBytes int

	// Dynamic is recorded on the config but not read by the index: documents
	// may carry fields not declared in Indexed whatever its value, and only
	// the paths in Indexed get a bitmap index.
	Dynamic bool
}

// EffectiveMaxSize returns MaxSizeBytes, or DefaultMaxSizeBytes if unset.
func (c Config) EffectiveMaxSize() int {
	if c.MaxSizeBytes <= 0 {
		return DefaultMaxSizeBytes
	}
	return c.MaxSizeBytes
}

// IsIndexed reports whether path is one of the configured indexed fields.
func (c Config) IsIndexed(path string) bool {
	for _, p := range c.Indexed {
		if p == path {
			return true
		}
	}
	return false
}
