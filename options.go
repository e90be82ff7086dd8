package vectrix

import (
	"log/slog"

	"github.com/vectrix-db/vectrix/metric"
)

// BackendKind selects which storage.Backend implementation CreateIndex uses.
type BackendKind int

const (
	// BackendOptimized is the default: a memory-mapped fixed-stride vector
	// file plus an embedded badger KV store for metadata, graph nodes, and
	// the manifest.
	BackendOptimized BackendKind = iota
	// BackendLegacy stores the entire index as one gzip-compressed JSON
	// document, rewritten atomically on every mutation. Simpler, slower,
	// and the format older vectra-derived tooling expects.
	BackendLegacy
)

type options struct {
	metric           metric.Metric
	backend          BackendKind
	m                int
	efConstruction   int
	efSearch         int
	metadataConfig   *metadataConfigOption
	walPath          string
	metricsCollector MetricsCollector
	logger           *Logger
}

// metadataConfigOption mirrors metadata.Config, kept as a separate type so
// this file does not need to import metadata just to express the option.
type metadataConfigOption struct {
	Indexed      []string
	MaxSizeBytes int
	Dynamic      bool
}

// Option configures CreateIndex/Open behavior.
type Option func(*options)

// WithMetric selects the distance metric an index uses. Ignored by Open,
// which always uses the metric recorded in the index's manifest.
func WithMetric(m metric.Metric) Option {
	return func(o *options) { o.metric = m }
}

// WithBackend selects the storage backend. CreateIndex and Open both use it;
// Open does not detect which backend a directory holds.
func WithBackend(kind BackendKind) Option {
	return func(o *options) { o.backend = kind }
}

// WithHNSWParams overrides the default HNSW graph construction parameters.
func WithHNSWParams(m, efConstruction, efSearch int) Option {
	return func(o *options) {
		o.m = m
		o.efConstruction = efConstruction
		o.efSearch = efSearch
	}
}

// WithIndexedFields declares which dotted metadata paths get a dedicated
// roaring-bitmap field index for filter pushdown. Only the listed paths are
// indexed; dynamic is recorded as metadata.Config.Dynamic and does not cause
// other fields to be indexed.
func WithIndexedFields(paths []string, dynamic bool) Option {
	return func(o *options) {
		o.metadataConfig = &metadataConfigOption{Indexed: paths, Dynamic: dynamic}
	}
}

// WithMetadataMaxSize caps the encoded size, in bytes, of any single item's
// metadata document. InsertItem and UpdateItem return ErrMetadataTooLarge
// for a document that exceeds it. Zero (the default) falls back to
// metadata.DefaultMaxSizeBytes.
func WithMetadataMaxSize(bytes int) Option {
	return func(o *options) {
		if o.metadataConfig == nil {
			o.metadataConfig = &metadataConfigOption{}
		}
		o.metadataConfig.MaxSizeBytes = bytes
	}
}

// WithWAL journals each transaction's prepare and commit records to a
// write-ahead log at path. Open does not replay this log: with or without
// it, the next Open after a crash starts from the last durable manifest and
// backend state.
func WithWAL(path string) Option {
	return func(o *options) { o.walPath = path }
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) { o.metricsCollector = mc }
}

// WithLogger configures structured logging for operations. Pass nil to
// disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) { o.logger = NewTextLogger(level) }
}

func applyOptions(optFns []Option) options {
	o := options{
		metric:           metric.MetricCosine,
		backend:          BackendOptimized,
		m:                16,
		efConstruction:   200,
		efSearch:         200,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
