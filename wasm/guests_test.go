package wasm

import (
	wt "github.com/wippyai/spits/internal/wasmtest"
)

var (
	none = []wt.ValType(nil)
	ret  = []wt.ValType{wt.I32}
)

func sig(types ...wt.ValType) []wt.ValType { return types }

// echoWorker pushes every task back unchanged. The handle is argc+1.
func echoWorker(g *wt.Guest) {
	g.Func("spits_worker_new", sig(wt.I32, wt.I32), ret, nil,
		wt.LocalGet(0), wt.I32Const(1), wt.I32Add())
	g.Func("spits_worker_run", sig(wt.I32, wt.I32, wt.I64, wt.I32), ret, nil,
		wt.LocalGet(1), wt.LocalGet(2), wt.LocalGet(3), wt.Call(g.Push),
		wt.I32Const(0))
	g.Func("spits_worker_finalize", sig(wt.I32), none, nil)
}

// countingJobManager produces tasks {1}, {2}, ... up to the count in the
// first job info byte, 3 without job info. Each push carries the incoming
// context plus one.
func countingJobManager(g *wt.Guest) {
	count := g.Global(wt.I32, true, 0)
	limit := g.Global(wt.I32, true, 0)

	g.Func("spits_job_manager_new", sig(wt.I32, wt.I32, wt.I32, wt.I64), ret, nil,
		wt.LocalGet(2), wt.I32Eqz(),
		wt.If(),
		wt.I32Const(3), wt.GlobalSet(limit),
		wt.Else(),
		wt.LocalGet(2), wt.I32Load8U(), wt.GlobalSet(limit),
		wt.End(),
		wt.I32Const(1))

	g.Func("spits_job_manager_next_task", sig(wt.I32, wt.I32), ret, nil,
		wt.GlobalGet(count), wt.GlobalGet(limit), wt.I32GeS(),
		wt.If(),
		wt.I32Const(0), wt.Return(),
		wt.End(),
		wt.GlobalGet(count), wt.I32Const(1), wt.I32Add(), wt.GlobalSet(count),
		wt.I32Const(16), wt.GlobalGet(count), wt.I32Store8(),
		wt.I32Const(16), wt.I64Const(1), wt.LocalGet(1), wt.I32Const(1), wt.I32Add(), wt.Call(g.Push),
		wt.I32Const(1))
}

// summingCommitter adds up the lengths of all partial results and pushes
// the total as a little-endian int64. It exports no finalize.
func summingCommitter(g *wt.Guest) {
	total := g.Global(wt.I64, true, 0)

	g.Func("spits_committer_new", sig(wt.I32, wt.I32, wt.I32, wt.I64), ret, nil,
		wt.I32Const(2))
	g.Func("spits_committer_commit_pit", sig(wt.I32, wt.I32, wt.I64), ret, nil,
		wt.GlobalGet(total), wt.LocalGet(2), wt.I64Add(), wt.GlobalSet(total),
		wt.I32Const(0))
	g.Func("spits_committer_commit_job", sig(wt.I32, wt.I32), ret, nil,
		wt.I32Const(32), wt.GlobalGet(total), wt.I64Store(),
		wt.I32Const(32), wt.I64Const(8), wt.LocalGet(1), wt.Call(g.Push),
		wt.I32Const(0))
}

// forwardingMain calls the runner with its own argv and no job info and
// returns status + size + first byte of the runner's result.
func forwardingMain(g *wt.Guest) {
	g.Func("spits_main", sig(wt.I32, wt.I32), ret, nil,
		wt.LocalGet(0), wt.LocalGet(1), wt.I32Const(0), wt.I64Const(0), wt.I32Const(48), wt.I32Const(56),
		wt.Call(g.Run),
		wt.I32Const(56), wt.I64Load(), wt.I32WrapI64(), wt.I32Add(),
		wt.I32Const(48), wt.I32Load(), wt.I32Load8U(), wt.I32Add())
}

// noisyWorker pushes its task twice.
func noisyWorker(g *wt.Guest) {
	g.Func("spits_worker_new", sig(wt.I32, wt.I32), ret, nil, wt.I32Const(1))
	g.Func("spits_worker_run", sig(wt.I32, wt.I32, wt.I64, wt.I32), ret, nil,
		wt.LocalGet(1), wt.LocalGet(2), wt.LocalGet(3), wt.Call(g.Push),
		wt.LocalGet(1), wt.LocalGet(2), wt.LocalGet(3), wt.Call(g.Push),
		wt.I32Const(0))
}

// trappingWorker hits unreachable on every task.
func trappingWorker(g *wt.Guest) {
	g.Func("spits_worker_new", sig(wt.I32, wt.I32), ret, nil, wt.I32Const(1))
	g.Func("spits_worker_run", sig(wt.I32, wt.I32, wt.I64, wt.I32), ret, nil,
		wt.Unreachable())
}

func build(parts ...func(*wt.Guest)) []byte {
	g := wt.NewGuest(1)
	for _, p := range parts {
		p(g)
	}
	return g.Encode()
}
