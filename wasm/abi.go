package wasm

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/spits"
)

const (
	// HostModule is the import namespace of the host functions.
	HostModule = "env"
	// HostPush is imported by guests to hand a buffer to the host:
	// (ptr i32, len i64, ctx i32).
	HostPush = "spits_push"
	// HostRun is imported by guests that call the host runner from
	// spits_main: (argc i32, argv i32, info i32, infolen i64, data i32,
	// size i32) -> i32. data and size point at an i32 and an i64 the host
	// fills with the runner's result buffer.
	HostRun = "spits_run"

	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"

	malloc      = "malloc"
	simpleAlloc = "alloc"
	simpleFree  = "free"

	// reactor initialisation run on every instance when exported
	initialize = "_initialize"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

// signatures is the wasm32 calling convention of every shape. Function
// pointer parameters of the C convention are replaced by the imported
// host functions.
var signatures = map[spits.Shape]signature{
	spits.ShapeNewInfo:  {params: []api.ValueType{i32, i32, i32, i64}, results: []api.ValueType{i32}},
	spits.ShapeNew:      {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	spits.ShapePull:     {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	spits.ShapeRun:      {params: []api.ValueType{i32, i32, i64, i32}, results: []api.ValueType{i32}},
	spits.ShapeCommit:   {params: []api.ValueType{i32, i32, i64}, results: []api.ValueType{i32}},
	spits.ShapeFinalize: {params: []api.ValueType{i32}},
	spits.ShapeMain:     {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return sameTypes(s.params, def.ParamTypes()) && sameTypes(s.results, def.ResultTypes())
}

func sameTypes(a, b []api.ValueType) bool {
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
