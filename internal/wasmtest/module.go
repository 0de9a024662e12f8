// Package wasmtest assembles small core wasm modules for tests. It covers
// the subset of the binary format that SPITS test guests need: function
// types, function imports, one memory, i32/i64 globals, exports and code.
package wasmtest

const (
	magic   uint32 = 0x6D736100
	version uint32 = 0x01

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionCode     byte = 10

	kindFunc   byte = 0
	kindMemory byte = 2
	kindGlobal byte = 3

	funcTypeByte byte = 0x60
)

// ValType is a wasm value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

type funcType struct {
	params, results []ValType
}

type imported struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type global struct {
	typ     ValType
	mutable bool
	init    int64
}

type export struct {
	name string
	kind byte
	idx  uint32
}

// Module is a module under construction. Imports must be added before any
// function so that function indices stay stable.
type Module struct {
	types   []funcType
	imports []imported
	funcs   []function
	globals []global
	exports []export
	pages   uint32
	memory  bool
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, t := range m.types {
		if equal(t.params, params) && equal(t.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

func equal(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, imported{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Memory declares the module memory with the given minimum page count and
// exports it as "memory".
func (m *Module) Memory(pages uint32) {
	m.memory = true
	m.pages = pages
	m.exports = append(m.exports, export{name: "memory", kind: kindMemory, idx: 0})
}

// Global declares a global initialised to init and returns its index.
func (m *Module) Global(typ ValType, mutable bool, init int64) uint32 {
	m.globals = append(m.globals, global{typ: typ, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports global idx under name.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, idx: idx})
}

// Func adds a function and returns its index. A non-empty name exports it.
// body is the instruction sequence without the trailing end.
func (m *Module) Func(name string, params, results, locals []ValType, body ...[]byte) uint32 {
	var code []byte
	for _, b := range body {
		code = append(code, b...)
	}
	m.funcs = append(m.funcs, function{
		typeIdx: m.typeIndex(params, results),
		locals:  locals,
		body:    code,
	})
	idx := uint32(len(m.imports) + len(m.funcs) - 1)
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
	}
	return idx
}

// Encode produces the module binary.
func (m *Module) Encode() []byte {
	w := &writer{}
	w.WriteU32LE(magic)
	w.WriteU32LE(version)

	if len(m.types) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.Byte(funcTypeByte)
			writeValTypes(sec, t.params)
			writeValTypes(sec, t.results)
		}
		writeSection(w, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteName(imp.module)
			sec.WriteName(imp.name)
			sec.Byte(kindFunc)
			sec.WriteU32(imp.typeIdx)
		}
		writeSection(w, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.WriteU32(f.typeIdx)
		}
		writeSection(w, sectionFunction, sec.Bytes())
	}

	if m.memory {
		sec := &writer{}
		sec.WriteU32(1)
		sec.Byte(0x00) // min only
		sec.WriteU32(m.pages)
		writeSection(w, sectionMemory, sec.Bytes())
	}

	if len(m.globals) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.Byte(byte(g.typ))
			if g.mutable {
				sec.Byte(1)
			} else {
				sec.Byte(0)
			}
			if g.typ == I64 {
				sec.WriteBytes(I64Const(g.init))
			} else {
				sec.WriteBytes(I32Const(int32(g.init)))
			}
			sec.Byte(opEnd)
		}
		writeSection(w, sectionGlobal, sec.Bytes())
	}

	if len(m.exports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.WriteName(e.name)
			sec.Byte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(w, sectionExport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := &writer{}
			body.WriteU32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.WriteU32(1)
				body.Byte(byte(l))
			}
			body.WriteBytes(f.body)
			body.Byte(opEnd)

			sec.WriteU32(uint32(len(body.Bytes())))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(w, sectionCode, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}
