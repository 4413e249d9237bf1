package engine

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// databasesFileName is the system database's catalog file: a process
// root directory's record of every logically-isolated database it hosts
// (spec.md §6 "Database-management interface", "the system database
// stores the catalog of databases").
const databasesFileName = "databases.yaml"

// dbEntry is one catalog record.
type dbEntry struct {
	Dir    string `yaml:"dir"`
	Config Config `yaml:"config"`
}

// databasesFile is the on-disk shape of databases.yaml, chosen for
// human-readable bookkeeping the way the rest of this codebase's config
// layer favors readable text formats over a binary one (SPEC_FULL.md
// ambient stack, gopkg.in/yaml.v3).
type databasesFile struct {
	Databases map[string]dbEntry `yaml:"databases"`
}

// Manager is the database-management interface spec.md §6 names: it
// tracks every logically-isolated database a process hosts, lazily opens
// their Engines on first use, and keeps a per-session "current database"
// pointer (spec.md "switch_database(session, name)", "current_database
// (session)").
type Manager struct {
	root string

	mu        sync.Mutex
	catalog   databasesFile
	open      map[string]*Engine
	sessions  map[string]string
}

// NewManager opens (or creates) the database catalog rooted at root. Every
// managed database's own directory lives under root.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "create database root %s", root)
	}
	m := &Manager{
		root:     root,
		open:     make(map[string]*Engine),
		sessions: make(map[string]string),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) catalogPath() string { return filepath.Join(m.root, databasesFileName) }

func (m *Manager) load() error {
	data, err := os.ReadFile(m.catalogPath())
	if os.IsNotExist(err) {
		m.catalog = databasesFile{Databases: make(map[string]dbEntry)}
		return nil
	}
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "read %s", m.catalogPath())
	}
	var cf databasesFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "parse %s", m.catalogPath())
	}
	if cf.Databases == nil {
		cf.Databases = make(map[string]dbEntry)
	}
	m.catalog = cf
	return nil
}

// save assumes the caller holds m.mu.
func (m *Manager) save() error {
	data, err := yaml.Marshal(m.catalog)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "encode %s", m.catalogPath())
	}
	if err := os.WriteFile(m.catalogPath(), data, 0o644); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "write %s", m.catalogPath())
	}
	return nil
}

// ListDatabases implements `list_databases()`.
func (m *Manager) ListDatabases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.catalog.Databases))
	for name := range m.catalog.Databases {
		names = append(names, name)
	}
	return names
}

// CreateDatabase implements `create_database(name, config)`: it registers
// name in the catalog and eagerly opens it, so a misconfiguration surfaces
// immediately rather than on first use.
func (m *Manager) CreateDatabase(name string, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.catalog.Databases[name]; exists {
		return nexuserr.New(nexuserr.KindConstraint, "database %q already exists", name)
	}
	dir := filepath.Join(m.root, "databases", name)
	eng, err := Open(dir, cfg)
	if err != nil {
		return err
	}
	m.catalog.Databases[name] = dbEntry{Dir: dir, Config: cfg}
	if err := m.save(); err != nil {
		eng.Close()
		delete(m.catalog.Databases, name)
		return err
	}
	m.open[name] = eng
	return nil
}

// DropDatabase implements `drop_database(name)`: it closes the database if
// open, removes it from the catalog, and deletes its data directory.
func (m *Manager) DropDatabase(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.catalog.Databases[name]
	if !ok {
		return nexuserr.New(nexuserr.KindSemantic, "database %q does not exist", name)
	}
	if eng, open := m.open[name]; open {
		if err := eng.Close(); err != nil {
			return err
		}
		delete(m.open, name)
	}
	delete(m.catalog.Databases, name)
	if err := m.save(); err != nil {
		return err
	}
	return os.RemoveAll(entry.Dir)
}

// Get lazily opens (if needed) and returns the Engine for name.
func (m *Manager) Get(name string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eng, ok := m.open[name]; ok {
		return eng, nil
	}
	entry, ok := m.catalog.Databases[name]
	if !ok {
		return nil, nexuserr.New(nexuserr.KindSemantic, "database %q does not exist", name)
	}
	eng, err := Open(entry.Dir, entry.Config)
	if err != nil {
		return nil, err
	}
	m.open[name] = eng
	return eng, nil
}

// NewSession mints an opaque session id bound to name, implementing the
// session half of `switch_database`/`current_database`.
func (m *Manager) NewSession(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalog.Databases[name]; !ok {
		return "", nexuserr.New(nexuserr.KindSemantic, "database %q does not exist", name)
	}
	id := uuid.NewString()
	m.sessions[id] = name
	return id, nil
}

// SwitchDatabase implements `switch_database(session, name)`.
func (m *Manager) SwitchDatabase(session, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalog.Databases[name]; !ok {
		return nexuserr.New(nexuserr.KindSemantic, "database %q does not exist", name)
	}
	if _, ok := m.sessions[session]; !ok {
		return nexuserr.New(nexuserr.KindSemantic, "unknown session %q", session)
	}
	m.sessions[session] = name
	return nil
}

// CurrentDatabase implements `current_database(session)`.
func (m *Manager) CurrentDatabase(session string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.sessions[session]
	if !ok {
		return "", nexuserr.New(nexuserr.KindSemantic, "unknown session %q", session)
	}
	return name, nil
}

// EndSession drops a session, the counterpart a caller invokes once it is
// done (sessions are otherwise held in memory only, for this process's
// lifetime).
func (m *Manager) EndSession(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
}

// Close closes every currently open database Engine.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, eng := range m.open {
		if err := eng.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, name)
	}
	return firstErr
}
