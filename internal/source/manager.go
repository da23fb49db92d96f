package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// Manager tracks the active source and the user's selection on it
type Manager struct {
	logger *zap.Logger

	mu        sync.RWMutex
	sources   map[string]core.EmailSource
	active    string
	selection []int
}

// NewManager creates a manager over sources
func NewManager(logger *zap.Logger, sources ...core.EmailSource) *Manager {
	m := &Manager{
		logger:  logger,
		sources: make(map[string]core.EmailSource),
	}
	for _, src := range sources {
		m.sources[src.Name()] = src
	}
	return m
}

// Register adds or replaces a source
func (m *Manager) Register(src core.EmailSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources[src.Name()] = src
}

// Names lists the registered sources
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Activate makes name the active source. The selection is always reset.
func (m *Manager) Activate(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[name]; !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	m.active = name
	m.selection = nil

	m.logger.Debug("Activated source", zap.String("source", name))
	return nil
}

// Active returns the active source, or nil
func (m *Manager) Active() core.EmailSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sources[m.active]
}

// Items returns the active source's current list
func (m *Manager) Items() []core.EmailItem {
	src := m.Active()
	if src == nil {
		return nil
	}
	return src.Items()
}

// Select replaces the selection. Indices must be distinct and within the
// active list; order is kept.
func (m *Manager) Select(indices []int) error {
	src := m.Active()
	if src == nil {
		return fmt.Errorf("%w: no active source", core.ErrInvalidSelection)
	}
	if err := ValidateSelection(indices, len(src.Items())); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.selection = append([]int(nil), indices...)
	return nil
}

// Selection returns a copy of the current selection
func (m *Manager) Selection() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]int(nil), m.selection...)
}

// ClearSelection empties the selection
func (m *Manager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selection = nil
}

// ValidateSelection checks that indices are distinct and in [0, n)
func ValidateSelection(indices []int, n int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: index %d out of range [0,%d)", core.ErrInvalidSelection, idx, n)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: index %d selected twice", core.ErrInvalidSelection, idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}
