package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nexusdb/nexus/internal/cache"
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/dirlock"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/propstore"
	"github.com/nexusdb/nexus/internal/record"
	"github.com/nexusdb/nexus/internal/txn"
	"github.com/nexusdb/nexus/internal/wal"
)

// Fixed on-disk file names spec.md §6 implies for a database directory,
// beyond the node/relationship/property store files record.Store and
// propstore.Store already own.
const (
	catalogFileName = "catalog.db"
	propsFileName   = "properties.store"
)

// Engine is C12: the façade binding one data directory's catalog,
// storage, WAL, transaction manager, index, and cache layers into a
// single handle. One Engine owns one directory for its entire open
// lifetime; concurrent opens of the same directory are rejected by
// dirlock (spec.md §6 "A process MUST NOT open the same data directory
// twice concurrently").
type Engine struct {
	dir string
	cfg Config

	lock *dirlock.Lock
	cat  *catalog.Catalog
	store *record.Store
	props *propstore.Store
	wal   *wal.WAL
	segment int
	txm   *txn.Manager
	idx   *exec.Indexes
	cache *cache.MultiLayerCache

	meta Metadata

	logLv   *logLevelVar
	log     *slog.Logger
	cfgWatch *configWatcher

	meterShutdown func()

	closeOnce sync.Once
	closeErr  error

	mu      sync.RWMutex
	closed  bool
	readers sync.WaitGroup
}

// Open acquires dir, validates or creates its on-disk layout, replays any
// existing WAL segments, rebuilds the in-memory sub-indexes, and returns
// a ready-to-use Engine. Open is the spec.md §6 "open(path) -> Engine"
// entry point.
func Open(dir string, cfg Config) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "create data directory %s", dir)
	}

	lock, err := dirlock.Acquire(dir)
	if err != nil {
		return nil, err
	}

	e, err := open(dir, cfg, lock)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return e, nil
}

func open(dir string, cfg Config, lock *dirlock.Lock) (_ *Engine, err error) {
	meta, err := loadOrCreateMetadata(dir)
	if err != nil {
		return nil, err
	}

	logLv := newLogLevelVar(cfg.LogLevel)
	logger := newLogger(logLv)

	cat, err := catalog.Open(filepath.Join(dir, catalogFileName))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			cat.Close()
		}
	}()
	if meta.SchemaEpoch != cat.SchemaEpoch() {
		meta.SchemaEpoch = cat.SchemaEpoch()
		if err = writeMetadata(dir, meta); err != nil {
			return nil, err
		}
	}

	store, err := record.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			store.Close()
		}
	}()

	props, err := propstore.Open(filepath.Join(dir, propsFileName))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			props.Close()
		}
	}()

	e := &Engine{
		dir:   dir,
		cfg:   cfg,
		lock:  lock,
		cat:   cat,
		store: store,
		props: props,
		meta:  meta,
		logLv: logLv,
		log:   logger,
	}

	if err = e.recover(); err != nil {
		return nil, err
	}
	e.txm = txn.New(e.wal)

	e.cache = cache.New(e.store.NodePageCache(), cache.Config{
		ObjectCapacity:    cfg.ObjectCapacity,
		IndexPageCapacity: cfg.IndexPageCapacity,
		PlanCapacity:      cfg.PlanCapacity,
		ResultCapacity:    cfg.ResultCapacity,
		DefaultTTL:        cfg.CacheTTL,
	})

	if cfg.MetricsEnabled {
		if shutdown, merr := e.startMetrics(); merr != nil {
			logger.Warn("metrics exporter did not start", "error", merr)
		} else {
			e.meterShutdown = shutdown
		}
	}

	cw, err := newConfigWatcher(dir, cfg, logLv)
	if err != nil {
		logger.Warn("config watcher did not start", "error", err)
	} else {
		e.cfgWatch = cw
	}

	logger.Info("engine opened", "dir", dir, "schema_epoch", meta.SchemaEpoch, "page_size", meta.PageSize)
	return e, nil
}

// startMetrics wires an OTel MeterProvider with a stdout exporter (the
// dependency-exercising default this build ships with; a production
// deployment would swap the exporter, not the instrumentation) and
// registers the cache layer's observable instruments (spec.md SPEC_FULL.md
// domain stack).
func (e *Engine) startMetrics() (func(), error) {
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	meter := provider.Meter("nexus.engine")
	if err := e.cache.InstrumentWithMeter(meter); err != nil {
		return nil, err
	}
	return func() { _ = provider.Shutdown(context.Background()) }, nil
}

// Dir returns the data directory this Engine owns.
func (e *Engine) Dir() string { return e.dir }

// Metadata returns the engine's on-disk metadata snapshot as of Open.
func (e *Engine) Metadata() Metadata { return e.meta }

// Close implements spec.md §5's shutdown sequence: stop admitting new
// work, drain active readers, flush the WAL and every dirty page, close
// the stores, then release the directory lock. Close is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		if e.cfgWatch != nil {
			_ = e.cfgWatch.Close()
		}
		if e.meterShutdown != nil {
			e.meterShutdown()
		}

		e.readers.Wait()

		var errs []error
		if err := e.props.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := e.store.FlushAll(); err != nil {
			errs = append(errs, err)
		}
		if err := e.wal.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.props.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.cat.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			e.closeErr = errs[0]
		}
	})
	return e.closeErr
}

// enterReader registers one in-flight read operation, blocking Close from
// completing until it exits, and reports whether the Engine is still
// open.
func (e *Engine) enterReader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	e.readers.Add(1)
	return true
}

func (e *Engine) exitReader() { e.readers.Done() }
