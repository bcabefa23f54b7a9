package factdb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/factdb/dict"
	"github.com/hupe1980/factdb/edge"
	"github.com/hupe1980/factdb/internal/cache"
	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// SortsNamespace holds the persisted sort registry.
const SortsNamespace = "sorts"

// DB owns one storage location: the sort registry, the dictionaries and one
// edge index per domain sort. Dictionaries and indexes are created the first
// time a sort is touched.
//
// Writes are buffered in memory and visible to every reader immediately.
// They reach the backend only on Commit; there is no auto-commit.
//
// A DB is safe for concurrent use. A storage location must not be opened by
// two DBs at once.
type DB struct {
	opts    options
	store   kv.Store
	reg     *schema.Registry
	set     *dict.Set
	framer  *rowframe.Framer
	logger  *Logger
	metrics MetricsCollector

	closed atomic.Bool

	mu    sync.Mutex
	edges map[schema.SortID]*edge.Index
}

// Open opens (or creates) the database in dir.
func Open(dir string, optFns ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	store := opts.store
	if store == nil {
		backend, err := openBackend(dir, opts)
		if err != nil {
			opts.logger.LogOpen(opts.backend, dir, 0, err)
			return nil, err
		}
		store = kv.NewStore(backend)
	}

	db, err := open(store, opts)
	if err != nil {
		_ = store.Close()
		opts.logger.LogOpen(opts.backend, dir, 0, err)
		return nil, err
	}
	opts.logger.LogOpen(opts.backend, dir, db.reg.Len(), nil)
	return db, nil
}

// OpenMemory opens a database that lives in process memory only.
func OpenMemory(optFns ...Option) (*DB, error) {
	return Open("", append(optFns, WithBackend(BackendMemory))...)
}

func openBackend(dir string, opts options) (kv.Backend, error) {
	switch opts.backend {
	case BackendBolt:
		return kv.OpenBolt(filepath.Join(dir, BoltFile), kv.BoltOptions{
			SyncWrites: opts.syncWrites,
			Timeout:    opts.lockTimeout,
		})
	case BackendBadger:
		return kv.OpenBadger(dir, kv.BadgerOptions{
			SyncWrites: opts.syncWrites,
			Logger:     badgerLogger{l: opts.logger},
		})
	case BackendMemory:
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("factdb: unknown backend %d", opts.backend)
	}
}

func open(store kv.Store, opts options) (*DB, error) {
	framer := rowframe.New(rowframe.Options{
		Compression: opts.compression,
		Threshold:   opts.threshold,
	})

	m, err := store.Map(SortsNamespace)
	if err != nil {
		return nil, err
	}
	reg, err := schema.NewRegistry(m)
	if err != nil {
		return nil, err
	}
	set, err := dict.NewSet(reg, store, dict.Options{
		ValueCacheSize:    opts.valueCacheSize,
		PropertyCacheSize: opts.propertyCacheSize,
	})
	if err != nil {
		return nil, err
	}

	return &DB{
		opts:    opts,
		store:   store,
		reg:     reg,
		set:     set,
		framer:  framer,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
		edges:   make(map[schema.SortID]*edge.Index),
	}, nil
}

func (db *DB) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// RegisterSort registers a sort, or returns the registered one if an equal
// descriptor is already known. Ranges must name registered sorts.
func (db *DB) RegisterSort(d schema.Descriptor) (*schema.Sort, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	before := db.reg.Len()
	s, err := db.reg.RegisterOrGet(d)
	if err != nil {
		return nil, err
	}
	if db.reg.Len() > before {
		db.logger.LogSortRegistered(s)
	}
	return s, nil
}

// Sort returns the registered sort called name.
func (db *DB) Sort(name string) (*schema.Sort, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.reg.ByName(name)
}

// Sorts returns every registered sort in registration order.
func (db *DB) Sorts() ([]*schema.Sort, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.reg.Sorts(), nil
}

func sortOf(v value.Value) string {
	if v == nil || v.Sort() == nil {
		return ""
	}
	return v.Sort().Name()
}

// GetOrCreateValueID interns v and every dictionary value nested in it.
// Inline sorts have no ids and return ErrUnsupportedKind.
func (db *DB) GetOrCreateValueID(v value.Value) (value.ID, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	start := time.Now()
	id, _, err := db.set.ValueID(v, true)
	db.metrics.RecordIntern(sortOf(v), time.Since(start), err)
	return id, err
}

// ValueID returns the id of v without interning anything. ok=false if v,
// or a dictionary value nested in it, was never interned.
func (db *DB) ValueID(v value.Value) (value.ID, bool, error) {
	if err := db.check(); err != nil {
		return 0, false, err
	}
	start := time.Now()
	id, ok, err := db.set.ValueID(v, false)
	db.metrics.RecordLookup(sortOf(v), ok, time.Since(start), err)
	return id, ok, err
}

// FetchValue returns the value with the given id in the named sort.
// An id that was never assigned is ErrUnknownID.
func (db *DB) FetchValue(id value.ID, sortName string) (value.Value, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	s, err := db.reg.ByName(sortName)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := db.set.Value(s, id)
	db.metrics.RecordLookup(sortName, err == nil, time.Since(start), ignoreUnknown(err))
	return v, err
}

func ignoreUnknown(err error) error {
	if errors.Is(err, schema.ErrUnknownID) {
		return nil
	}
	return err
}

// Dictionary returns the value dictionary of the named sort.
func (db *DB) Dictionary(sortName string) (dict.ValueDictionary, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	s, err := db.reg.ByName(sortName)
	if err != nil {
		return nil, err
	}
	d, ok, err := db.set.Dictionary(s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: sort %q is inline and has no dictionary", ErrUnsupportedKind, sortName)
	}
	return d, nil
}

// Values iterates the dictionary of the named sort in id order.
func (db *DB) Values(sortName string) iter.Seq2[dict.Entry[value.Value], error] {
	d, err := db.Dictionary(sortName)
	if err != nil {
		return func(yield func(dict.Entry[value.Value], error) bool) {
			yield(dict.Entry[value.Value]{}, err)
		}
	}
	return d.All()
}

// GetOrCreatePropertyID interns the property name between two named sorts.
func (db *DB) GetOrCreatePropertyID(name, domain, rng string) (value.ID, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	return db.set.Properties().GetOrCreate(name, domain, rng)
}

// PropertyID looks a property up without interning it.
func (db *DB) PropertyID(name, domain, rng string) (value.ID, bool, error) {
	if err := db.check(); err != nil {
		return 0, false, err
	}
	sig, err := db.set.Properties().Signature(name, domain, rng)
	if err != nil {
		return 0, false, err
	}
	return db.set.Properties().ID(sig)
}

// FetchPropertySignature returns the signature behind a property id.
func (db *DB) FetchPropertySignature(id value.ID) (schema.PropertySignature, error) {
	if err := db.check(); err != nil {
		return schema.PropertySignature{}, err
	}
	return db.set.Property(id)
}

// Properties returns the property dictionary.
func (db *DB) Properties() *dict.PropertyDictionary { return db.set.Properties() }

// EdgeIndex returns the edge index of the named domain sort, opening it on
// first use. Inline sorts return ErrUnsupportedKind.
func (db *DB) EdgeIndex(sortName string) (*edge.Index, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	s, err := db.reg.ByName(sortName)
	if err != nil {
		return nil, err
	}
	return db.edgeIndex(s)
}

func (db *DB) edgeIndex(s *schema.Sort) (*edge.Index, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if x, ok := db.edges[s.ID()]; ok {
		return x, nil
	}
	x, err := edge.NewIndex(s, db.store, db.set.Codec(), edge.Options{Framer: db.framer})
	if err != nil {
		return nil, err
	}
	db.edges[s.ID()] = x
	return x, nil
}

// UpdateEdges replaces every edge of the container's source. Ids are
// created for the source, targets, qualifier values and properties.
func (db *DB) UpdateEdges(c *value.EdgeContainer) error {
	if err := db.check(); err != nil {
		return err
	}
	if c == nil {
		return schema.Mismatch("", -1, "nil edge container", "edge container", "nil")
	}
	start := time.Now()
	err := db.updateEdges(c)
	db.metrics.RecordEdgeUpdate(sortOf(c.Source), c.NumEdges(), time.Since(start), err)
	if err != nil {
		db.logger.Debug("update edges failed", "sort", sortOf(c.Source), "error", err)
	}
	return err
}

func (db *DB) updateEdges(c *value.EdgeContainer) error {
	s, err := db.set.Codec().SortOf(c.Source)
	if err != nil {
		return err
	}
	x, err := db.edgeIndex(s)
	if err != nil {
		return err
	}
	_, err = x.Update(c)
	return err
}

// FetchEdgeContainer returns a lazy view of the source's edges. ok=false if
// the source was never interned or has no edges. Decode errors surface from
// the view's cursors.
func (db *DB) FetchEdgeContainer(source value.Value) (*edge.View, bool, error) {
	if err := db.check(); err != nil {
		return nil, false, err
	}
	start := time.Now()
	view, ok, err := db.fetchEdgeContainer(source)
	db.metrics.RecordEdgeFetch(sortOf(source), ok, time.Since(start), err)
	return view, ok, err
}

func (db *DB) fetchEdgeContainer(source value.Value) (*edge.View, bool, error) {
	s, err := db.set.Codec().SortOf(source)
	if err != nil {
		return nil, false, err
	}
	x, err := db.edgeIndex(s)
	if err != nil {
		return nil, false, err
	}
	return x.GetBySource(source)
}

// FetchEdgeContainerByID is FetchEdgeContainer for a known source id.
func (db *DB) FetchEdgeContainerByID(sortName string, id value.ID) (*edge.View, bool, error) {
	if err := db.check(); err != nil {
		return nil, false, err
	}
	start := time.Now()
	x, err := db.EdgeIndex(sortName)
	if err != nil {
		db.metrics.RecordEdgeFetch(sortName, false, time.Since(start), err)
		return nil, false, err
	}
	view, ok, err := x.Get(id)
	db.metrics.RecordEdgeFetch(sortName, ok, time.Since(start), err)
	return view, ok, err
}

// SourcesWithProperty returns the ids of the domain sort's sources whose
// edges currently include the property. An unknown property yields an
// empty bitmap.
func (db *DB) SourcesWithProperty(domain, property, rng string) (*roaring64.Bitmap, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	pid, ok, err := db.PropertyID(property, domain, rng)
	if err != nil {
		return nil, err
	}
	if !ok {
		return roaring64.New(), nil
	}
	x, err := db.EdgeIndex(domain)
	if err != nil {
		return nil, err
	}
	return x.SourcesWithProperty(pid), nil
}

// Preload loads the edge rows of the named domain sort into memory. Results
// do not change, only latency.
func (db *DB) Preload(ctx context.Context, sortName string, opts edge.PreloadOptions) error {
	if err := db.check(); err != nil {
		return err
	}
	x, err := db.EdgeIndex(sortName)
	if err != nil {
		return err
	}
	start := time.Now()
	err = x.Preload(ctx, opts)
	db.logger.LogPreload(sortName, x.Stats().CachedRows, time.Since(start), err)
	return err
}

// Stats describes a database.
type Stats struct {
	Sorts         int
	Properties    uint64
	Dictionaries  map[string]DictionaryStats
	Edges         map[string]edge.Stats
	PendingWrites int
	Commits       uint64
}

// DictionaryStats describes one value dictionary.
type DictionaryStats struct {
	Values      uint64
	CacheHits   int64
	CacheMisses int64
}

// Stats returns a snapshot of the loaded dictionaries and edge indexes.
func (db *DB) Stats() (Stats, error) {
	if err := db.check(); err != nil {
		return Stats{}, err
	}
	s := Stats{
		Sorts:        db.reg.Len(),
		Properties:   db.set.Properties().Len(),
		Dictionaries: make(map[string]DictionaryStats),
		Edges:        make(map[string]edge.Stats),
	}
	for _, d := range db.set.Loaded() {
		ds := DictionaryStats{Values: d.Len()}
		if c, ok := d.(interface{ CacheStats() cache.Stats }); ok {
			cs := c.CacheStats()
			ds.CacheHits, ds.CacheMisses = cs.Hits, cs.Misses
		}
		s.Dictionaries[d.Sort().Name()] = ds
	}

	db.mu.Lock()
	for _, x := range db.edges {
		s.Edges[x.Sort().Name()] = x.Stats()
	}
	db.mu.Unlock()

	if bs, ok := db.store.(interface{ Stats() kv.Stats }); ok {
		ks := bs.Stats()
		s.PendingWrites, s.Commits = ks.PendingWrites, ks.Commits
	}
	return s, nil
}

// Commit writes posting lists and every buffered write to the backend.
func (db *DB) Commit() error {
	if err := db.check(); err != nil {
		return err
	}
	return db.commit()
}

func (db *DB) commit() error {
	start := time.Now()

	db.mu.Lock()
	indexes := make([]*edge.Index, 0, len(db.edges))
	for _, x := range db.edges {
		indexes = append(indexes, x)
	}
	db.mu.Unlock()

	var err error
	for _, x := range indexes {
		if err = x.Flush(); err != nil {
			break
		}
	}

	pending := 0
	if bs, ok := db.store.(interface{ Stats() kv.Stats }); ok {
		pending = bs.Stats().PendingWrites
	}
	if err == nil {
		err = db.store.Commit()
	}
	db.metrics.RecordCommit(pending, time.Since(start), err)
	db.logger.LogCommit(pending, time.Since(start), err)
	return err
}
