//go:build cgo

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	stderrors "errors"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Library is a shared object opened with dlopen.
type Library struct {
	handle unsafe.Pointer
	path   string

	mu      sync.Mutex
	symbols map[string]*symbol
}

var _ spits.Library = (*Library)(nil)

// Open resolves path and loads the shared object with immediate binding.
func Open(path string) (*Library, error) {
	resolved, err := spits.ResolvePath(path)
	if err != nil {
		return nil, errors.Load(path, err)
	}

	cpath := C.CString(resolved)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, errors.Load(resolved, stderrors.New(dlerror()))
	}

	Logger().Debug("shared object loaded", zap.String("path", resolved))
	return &Library{
		handle:  handle,
		path:    resolved,
		symbols: make(map[string]*symbol),
	}, nil
}

func dlerror() string {
	if msg := C.dlerror(); msg != nil {
		return C.GoString(msg)
	}
	return "dlopen failed"
}

type symbol struct {
	name  string
	shape spits.Shape
	addr  C.uintptr_t
}

func (s *symbol) Name() string       { return s.name }
func (s *symbol) Shape() spits.Shape { return s.shape }

func (l *Library) Path() string { return l.path }

// Lookup resolves name with dlsym. Only well-known symbols are resolved;
// their calling convention cannot be checked, so a binary that exports one
// with another signature is undefined behaviour.
func (l *Library) Lookup(name string) (spits.Symbol, bool) {
	shape, ok := spits.ShapeOf(name)
	if !ok {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if sym, ok := l.symbols[name]; ok {
		if sym == nil {
			return nil, false
		}
		return sym, true
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	addr := C.dlsym(l.handle, cname)
	if addr == nil {
		l.symbols[name] = nil
		return nil, false
	}
	sym := &symbol{name: name, shape: shape, addr: C.uintptr_t(uintptr(addr))}
	l.symbols[name] = sym
	return sym, true
}

// Attach returns a unit. Native modules keep their state in the process
// heap, so units only scope marshaling.
func (l *Library) Attach(ctx context.Context) (spits.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unit{lib: l}, nil
}

// Close forgets resolved symbols. The image stays mapped.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	l.symbols = make(map[string]*symbol)
	l.mu.Unlock()
	return nil
}
