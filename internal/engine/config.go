// Package engine implements C12: the Engine façade that binds the
// catalog, storage, WAL, transaction manager, index and cache layers into
// a single data-directory-scoped handle, plus the database-management
// interface spec.md §6 describes for a process hosting several
// logically-isolated databases.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config sizes every cache layer and bounds query execution. Only
// LogLevel and the cache TTL are safe to change on a live Engine (see
// configWatcher); cache capacities are fixed at Open time because MultiLayerCache
// pre-allocates its LRU backings (spec.md SPEC_FULL.md ambient stack,
// "hot config reload").
type Config struct {
	PageCacheBudget   int           `mapstructure:"page_cache_budget" yaml:"page_cache_budget"`
	ObjectCapacity    int           `mapstructure:"object_cache_capacity" yaml:"object_cache_capacity"`
	IndexPageCapacity int           `mapstructure:"index_page_cache_capacity" yaml:"index_page_cache_capacity"`
	PlanCapacity      int           `mapstructure:"plan_cache_capacity" yaml:"plan_cache_capacity"`
	ResultCapacity    int           `mapstructure:"result_cache_capacity" yaml:"result_cache_capacity"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// DefaultConfig mirrors cache.DefaultConfig's sizing for a single-node
// embedded deployment.
func DefaultConfig() Config {
	return Config{
		PageCacheBudget:   1024,
		ObjectCapacity:    10000,
		IndexPageCapacity: 2000,
		PlanCapacity:      500,
		ResultCapacity:    200,
		CacheTTL:          5 * time.Minute,
		QueryTimeout:      30 * time.Second,
		LogLevel:          "info",
		MetricsEnabled:    false,
	}
}

// configFileName is the on-disk name a data directory's config file is
// read from, if present: TOML, in the tradition of this codebase's
// BurntSushi/toml-parsed config layer.
const configFileName = "config.toml"

// LoadConfig reads <dir>/config.toml (if present) via BurntSushi/toml into
// a plain map, layers it under viper together with NEXUS_*
// environment overrides and the package defaults, and returns the
// resolved Config. A missing config file is not an error: DefaultConfig
// applies.
func LoadConfig(dir string) (Config, error) {
	v := newViper()
	path := filepath.Join(dir, configFileName)
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg map[string]any
		if _, err := toml.Decode(string(data), &fileCfg); err != nil {
			return Config{}, fmt.Errorf("engine: parse %s: %w", path, err)
		}
		for k, val := range fileCfg {
			v.Set(k, val)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("engine: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("engine: unmarshal config: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("NEXUS")
	v.AutomaticEnv()
	def := DefaultConfig()
	v.SetDefault("page_cache_budget", def.PageCacheBudget)
	v.SetDefault("object_cache_capacity", def.ObjectCapacity)
	v.SetDefault("index_page_cache_capacity", def.IndexPageCapacity)
	v.SetDefault("plan_cache_capacity", def.PlanCapacity)
	v.SetDefault("result_cache_capacity", def.ResultCapacity)
	v.SetDefault("cache_ttl", def.CacheTTL)
	v.SetDefault("query_timeout", def.QueryTimeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)
	return v
}

// logLevelVar backs the Engine's *slog.Logger so LogLevel can change
// without rebuilding the handler.
type logLevelVar struct {
	v *slog.LevelVar
}

func newLogLevelVar(level string) *logLevelVar {
	lv := &slog.LevelVar{}
	lv.Set(parseLevel(level))
	return &logLevelVar{v: lv}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(lv *logLevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv.v}))
}

// configWatcher watches <dir>/config.toml for writes and re-resolves
// LogLevel/CacheTTL live, the "subset of settings safe to change live"
// spec.md SPEC_FULL.md's ambient stack calls for. Every other field
// requires reopening the Engine.
type configWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	logLv   *logLevelVar
	ttl     atomic.Int64 // time.Duration, nanoseconds

	mu      sync.Mutex
	closed  bool
	doneCh  chan struct{}
}

func newConfigWatcher(dir string, cfg Config, logLv *logLevelVar) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("engine: create config watcher: %w", err)
	}
	// Watching the directory rather than the file tolerates the file not
	// existing yet at Open time and editors that replace-by-rename.
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("engine: watch %s: %w", dir, err)
	}
	cw := &configWatcher{watcher: w, dir: dir, logLv: logLv, doneCh: make(chan struct{})}
	cw.ttl.Store(int64(cfg.CacheTTL))
	go cw.run()
	return cw, nil
}

func (cw *configWatcher) run() {
	defer close(cw.doneCh)
	target := filepath.Join(cw.dir, configFileName)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(target) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.dir)
			if err != nil {
				continue // keep serving the last good config
			}
			cw.logLv.v.Set(parseLevel(cfg.LogLevel))
			cw.ttl.Store(int64(cfg.CacheTTL))
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// TTL returns the currently live cache TTL.
func (cw *configWatcher) TTL() time.Duration { return time.Duration(cw.ttl.Load()) }

func (cw *configWatcher) Close() error {
	cw.mu.Lock()
	if cw.closed {
		cw.mu.Unlock()
		return nil
	}
	cw.closed = true
	cw.mu.Unlock()
	err := cw.watcher.Close()
	<-cw.doneCh
	return err
}
