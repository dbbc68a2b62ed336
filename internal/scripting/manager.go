package scripting

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the compiled rule scripts of a ruleset, keyed by name.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	scripts map[string]*Script
	limit   int
	logger  *zap.Logger
}

// NewManager creates an empty Manager.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger, instLimit int) *Manager {
	if logger == nil {
		panic("scripting: NewManager requires a logger")
	}
	return &Manager{
		scripts: make(map[string]*Script),
		limit:   instLimit,
		logger:  logger,
	}
}

// Compile compiles src under name and registers it, replacing any script of
// the same name. Compiling identical source again returns the cached script.
func (m *Manager) Compile(name, src string) (*Script, error) {
	m.mu.RLock()
	cached, ok := m.scripts[name]
	m.mu.RUnlock()
	if ok && cached.Source == src {
		return cached, nil
	}

	s, err := compile(name, src, m.limit)
	if err != nil {
		m.logger.Warn("script rejected", zap.String("script", name), zap.Error(err))
		return nil, err
	}
	m.mu.Lock()
	m.scripts[name] = s
	m.mu.Unlock()
	m.logger.Debug("script compiled",
		zap.String("script", name),
		zap.Int("entries", len(s.entries)),
	)
	return s, nil
}

// Get returns the script registered under name.
func (m *Manager) Get(name string) (*Script, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[name]
	return s, ok
}

// Names returns every registered script name in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.scripts))
	for n := range m.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadDir compiles every *.lua file in dir in lexicographic order. Each
// script is named after its file without the extension.
func (m *Manager) LoadDir(dir string) (int, error) {
	return m.LoadFS(os.DirFS(dir), ".")
}

// LoadFS is LoadDir over an fs.FS.
func (m *Manager) LoadFS(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".lua" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		src, err := fs.ReadFile(fsys, path.Join(dir, f))
		if err != nil {
			return 0, fmt.Errorf("scripting: reading %q: %w", f, err)
		}
		if _, err := m.Compile(strings.TrimSuffix(f, ".lua"), string(src)); err != nil {
			return 0, fmt.Errorf("scripting: loading %q: %w", f, err)
		}
	}
	m.logger.Info("scripts loaded", zap.String("dir", dir), zap.Int("count", len(files)))
	return len(files), nil
}
