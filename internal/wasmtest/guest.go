package wasmtest

// HeapBase is where the guest allocator starts handing out memory. Guests
// may use the bytes below it as scratch space.
const HeapBase = 1024

// Guest is a SPITS job binary under construction. It imports the host's
// push and runner functions and exports memory plus a bump allocator.
type Guest struct {
	*Module
	Push uint32 // env.spits_push(ptr i32, len i64, ctx i32)
	Run  uint32 // env.spits_run(argc i32, argv i32, info i32, infolen i64, data i32, size i32) -> i32
	heap uint32
}

// NewGuest returns a guest with pages of memory, exporting malloc and a
// free that never reclaims.
func NewGuest(pages uint32) *Guest {
	m := New()
	g := &Guest{Module: m}
	g.Push = m.Import("env", "spits_push", []ValType{I32, I64, I32}, nil)
	g.Run = m.Import("env", "spits_run", []ValType{I32, I32, I32, I64, I32, I32}, []ValType{I32})
	m.Memory(pages)
	g.heap = m.Global(I32, true, HeapBase)

	m.Func("malloc", []ValType{I32}, []ValType{I32}, nil, g.bump(0)...)
	m.Func("free", []ValType{I32}, nil, nil)
	return g
}

// ExportRealloc adds cabi_realloc(old, oldsize, align, newsize) backed by
// the same bump allocator.
func (g *Guest) ExportRealloc() {
	g.Func("cabi_realloc", []ValType{I32, I32, I32, I32}, []ValType{I32}, nil, g.bump(3)...)
}

// bump returns the current heap pointer and advances it by the size held
// in local sizeLocal, rounded up to 8 bytes.
func (g *Guest) bump(sizeLocal uint32) [][]byte {
	return [][]byte{
		GlobalGet(g.heap),
		GlobalGet(g.heap), LocalGet(sizeLocal), I32Add(),
		I32Const(7), I32Add(), I32Const(-8), I32And(),
		GlobalSet(g.heap),
	}
}
