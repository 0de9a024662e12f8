package wasm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Config holds configuration for loading a guest.
type Config struct {
	// MemoryLimitPages caps the memory of each guest instance in 64KiB
	// pages. 0 means the wazero default.
	MemoryLimitPages uint32

	// Stdout and Stderr receive the output of guests that import WASI.
	// nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Library is a compiled wasm job binary. Every Attach instantiates a fresh
// guest, so adapters never share linear memory.
type Library struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cfg      Config
	path     string
	exports  map[string]spits.Shape
}

var _ spits.Library = (*Library)(nil)

// Open reads and compiles the guest at path.
func Open(ctx context.Context, path string, cfg *Config) (*Library, error) {
	resolved, err := spits.ResolvePath(path)
	if err != nil {
		return nil, errors.Load(path, err)
	}
	wasmBytes, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Load(resolved, err)
	}
	return Load(ctx, resolved, wasmBytes, cfg)
}

// Load compiles wasmBytes. name is reported as the library path.
func Load(ctx context.Context, name string, wasmBytes []byte, cfg *Config) (*Library, error) {
	l := &Library{path: name}
	if cfg != nil {
		l.cfg = *cfg
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if l.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(l.cfg.MemoryLimitPages)
	}
	l.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := l.init(ctx, wasmBytes); err != nil {
		return nil, multierr.Append(err, l.runtime.Close(ctx))
	}

	Logger().Debug("guest compiled",
		zap.String("path", name),
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("exports", len(l.exports)))
	return l, nil
}

func (l *Library) init(ctx context.Context, wasmBytes []byte) error {
	compiled, err := l.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Load(l.path, err)
	}
	l.compiled = compiled

	exports, err := checkExports(l.path, compiled)
	if err != nil {
		return err
	}
	l.exports = exports

	if err := instantiateHost(ctx, l.runtime); err != nil {
		return errors.Load(l.path, fmt.Errorf("instantiate host module: %w", err))
	}

	if importsWASI(compiled) {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, l.runtime); err != nil {
			return errors.Load(l.path, fmt.Errorf("instantiate WASI: %w", err))
		}
	}
	return nil
}

// checkExports collects the well-known exports and rejects any whose
// signature does not follow the wasm32 convention.
func checkExports(path string, compiled wazero.CompiledModule) (map[string]spits.Shape, error) {
	defs := compiled.ExportedFunctions()
	exports := make(map[string]spits.Shape)
	for _, name := range spits.Symbols() {
		def, ok := defs[name]
		if !ok {
			continue
		}
		shape, _ := spits.ShapeOf(name)
		want := signatures[shape]
		if !want.matches(def) {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Library(path).
				Symbol(name).
				Detail("signature %v -> %v, want %v -> %v",
					typeNames(def.ParamTypes()), typeNames(def.ResultTypes()),
					typeNames(want.params), typeNames(want.results)).
				Build()
		}
		exports[name] = shape
	}
	return exports, nil
}

func typeNames(types []api.ValueType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

func importsWASI(compiled wazero.CompiledModule) bool {
	for _, def := range compiled.ImportedFunctions() {
		if module, _, _ := def.Import(); module == wasi_snapshot_preview1.ModuleName {
			return true
		}
	}
	return false
}

type symbol struct {
	name  string
	shape spits.Shape
}

func (s symbol) Name() string       { return s.name }
func (s symbol) Shape() spits.Shape { return s.shape }

func (l *Library) Path() string { return l.path }

func (l *Library) Lookup(name string) (spits.Symbol, bool) {
	shape, ok := l.exports[name]
	if !ok {
		return nil, false
	}
	return symbol{name: name, shape: shape}, true
}

// Attach instantiates a new guest. _initialize runs first when the guest
// exports it.
func (l *Library) Attach(ctx context.Context) (spits.Unit, error) {
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions(initialize)
	if l.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(l.cfg.Stdout)
	}
	if l.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(l.cfg.Stderr)
	}

	mod, err := l.runtime.InstantiateModule(ctx, l.compiled, modCfg)
	if err != nil {
		return nil, errors.Load(l.path, fmt.Errorf("instantiate: %w", err))
	}

	u, err := newUnit(l, mod)
	if err != nil {
		return nil, multierr.Append(err, mod.Close(ctx))
	}
	return u, nil
}

// Close releases the runtime and every guest still attached.
func (l *Library) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}
