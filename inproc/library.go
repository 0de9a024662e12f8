package inproc

import (
	"context"
	"sort"
	"sync"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Scheme prefixes the path of in-process libraries.
const Scheme = "inproc:"

var (
	registry   = make(map[string]Exports)
	registryMu sync.RWMutex
)

// Register makes a Go job binary available to Open under name. Registering
// the same name twice replaces the earlier exports.
func Register(name string, exports Exports) {
	registryMu.Lock()
	registry[name] = exports
	registryMu.Unlock()
}

// Registered lists the registered names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns the library registered under name.
func Open(name string) (*Library, error) {
	registryMu.RLock()
	exports, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "in-process job binary", name)
	}
	return New(name, exports), nil
}

// Library is a Go job binary behind the spits.Library contract. Its handle
// table plays the role of the module's heap and is shared by all units.
type Library struct {
	handles *handleTable
	name    string
	exports Exports
}

// New wraps exports without registering them.
func New(name string, exports Exports) *Library {
	return &Library{
		handles: newHandleTable(),
		name:    name,
		exports: exports,
	}
}

var _ spits.Library = (*Library)(nil)

type symbol struct {
	name  string
	shape spits.Shape
}

func (s symbol) Name() string       { return s.name }
func (s symbol) Shape() spits.Shape { return s.shape }

func (l *Library) Path() string { return Scheme + l.name }

func (l *Library) Lookup(name string) (spits.Symbol, bool) {
	shape, ok := spits.ShapeOf(name)
	if !ok || !l.exports.has(name) {
		return nil, false
	}
	return symbol{name: name, shape: shape}, true
}

func (l *Library) Attach(ctx context.Context) (spits.Unit, error) {
	return &unit{lib: l, regions: make(map[uint64]any)}, nil
}

// Live returns the number of role instances that have not been finalized.
func (l *Library) Live() int { return l.handles.len() }

func (l *Library) Close(ctx context.Context) error { return nil }
