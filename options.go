package factdb

import (
	"log/slog"
	"time"

	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/kv"
)

// Backend selects the persistent-map engine.
type Backend int

const (
	// BackendBolt stores everything in a single bbolt file. The default.
	BackendBolt Backend = iota
	// BackendBadger stores everything in a badger LSM directory.
	BackendBadger
	// BackendMemory keeps everything in process memory. Nothing survives Close.
	BackendMemory
)

func (b Backend) String() string {
	switch b {
	case BackendBolt:
		return "bolt"
	case BackendBadger:
		return "badger"
	case BackendMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// Compression selects how large edge rows are compressed.
type Compression = rowframe.Compression

const (
	CompressionNone = rowframe.CompressionNone
	CompressionLZ4  = rowframe.CompressionLZ4
	CompressionZSTD = rowframe.CompressionZSTD
)

// BoltFile is the name of the bbolt file inside the database directory.
const BoltFile = "factdb.bolt"

type options struct {
	backend           Backend
	store             kv.Store
	compression       Compression
	threshold         int
	valueCacheSize    int
	propertyCacheSize int
	syncWrites        bool
	lockTimeout       time.Duration
	metricsCollector  MetricsCollector
	logger            *Logger
}

func defaultOptions() options {
	return options{
		backend:           BackendBolt,
		compression:       CompressionNone,
		threshold:         rowframe.DefaultThreshold,
		valueCacheSize:    1 << 16,
		propertyCacheSize: 1 << 12,
		syncWrites:        true,
		lockTimeout:       time.Second,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
}

// Option configures Open.
type Option func(*options)

// WithBackend selects the storage engine. Ignored when WithStore is given.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithStore runs the database on an already opened store. The directory
// passed to Open is ignored and Close closes the store.
func WithStore(s kv.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCompression compresses edge rows at or above the compression
// threshold. Rows that do not shrink by at least 10% are stored raw.
//
// Example:
//
//	db, err := factdb.Open(dir, factdb.WithCompression(factdb.CompressionZSTD))
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCompressionThreshold sets the smallest row size, in bytes, that is
// considered for compression.
func WithCompressionThreshold(n int) Option {
	return func(o *options) {
		o.threshold = n
	}
}

// WithValueCacheSize bounds the decoded values cached per sort dictionary.
// Zero or less disables the cache.
func WithValueCacheSize(n int) Option {
	return func(o *options) {
		o.valueCacheSize = n
	}
}

// WithPropertyCacheSize bounds the cached property signatures.
func WithPropertyCacheSize(n int) Option {
	return func(o *options) {
		o.propertyCacheSize = n
	}
}

// WithSyncWrites controls whether every Commit is fsynced. Disabling it
// speeds up bulk loads at the cost of losing recent commits on power loss.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

// WithLockTimeout bounds how long Open waits for a bbolt file locked by
// another process.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &factdb.BasicMetricsCollector{}
//	db, _ := factdb.OpenMemory(factdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
//
// Example:
//
//	logger := factdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := factdb.Open(dir, factdb.WithLogger(logger))
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel installs a text logger to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}
