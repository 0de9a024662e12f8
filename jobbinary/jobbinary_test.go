package jobbinary

import (
	"bytes"
	"context"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
	"github.com/wippyai/spits/inproc"
)

// spyLibrary records every lookup and invocation that reaches the backend.
type spyLibrary struct {
	spits.Library
	lookups []string
	invoked []string
}

func (s *spyLibrary) Lookup(name string) (spits.Symbol, bool) {
	s.lookups = append(s.lookups, name)
	return s.Library.Lookup(name)
}

func (s *spyLibrary) Attach(ctx context.Context) (spits.Unit, error) {
	u, err := s.Library.Attach(ctx)
	if err != nil {
		return nil, err
	}
	return &spyUnit{Unit: u, lib: s}, nil
}

type spyUnit struct {
	spits.Unit
	lib *spyLibrary
}

func (u *spyUnit) Invoke(ctx context.Context, sym spits.Symbol, f *spits.Frame) (int64, error) {
	u.lib.invoked = append(u.lib.invoked, sym.Name())
	return u.Unit.Invoke(ctx, sym, f)
}

func openSpy(t *testing.T, ex inproc.Exports) (*Binary, *spyLibrary) {
	t.Helper()
	spy := &spyLibrary{Library: inproc.New(t.Name(), ex)}
	bin, err := Open(spy)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return bin, spy
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

func jobManagerExports(next func(state any, push inproc.Push, ctx spits.Context) spits.Status) inproc.Exports {
	return inproc.Exports{
		JobManagerNew:      func(argv []string, jobinfo []byte) any { return new(int) },
		JobManagerNextTask: next,
	}
}

func TestOpen_NilLibrary(t *testing.T) {
	if _, err := Open(nil); !isKind(err, errors.PhaseLoad, errors.KindInvalidInput) {
		t.Fatalf("Open(nil) err = %v", err)
	}
}

func TestOpen_ProbesOptionalHooksOnce(t *testing.T) {
	bin, spy := openSpy(t, inproc.Exports{
		WorkerFinalize: func(any) {},
		Main:           func([]string, inproc.RunFunc) spits.Status { return 0 },
	})

	want := []string{
		spits.SymJobManagerFinalize,
		spits.SymWorkerFinalize,
		spits.SymCommitterFinalize,
		spits.SymMain,
	}
	if !slices.Equal(spy.lookups, want) {
		t.Fatalf("lookups = %v, want %v", spy.lookups, want)
	}

	caps := bin.Capabilities()
	if caps.JobManagerFinalize != nil || caps.CommitterFinalize != nil {
		t.Error("absent finalizers should be nil")
	}
	if caps.WorkerFinalize == nil || !caps.HasMain() {
		t.Error("present hooks should be resolved")
	}
}

func TestJobManager_ConstructPassesArgvAndJobInfo(t *testing.T) {
	var gotArgv []string
	var gotInfo []byte
	bin, _ := openSpy(t, inproc.Exports{
		JobManagerNew: func(argv []string, jobinfo []byte) any {
			gotArgv = slices.Clone(argv)
			gotInfo = bytes.Clone(jobinfo)
			return "state"
		},
		JobManagerNextTask: func(any, inproc.Push, spits.Context) spits.Status { return 0 },
	})

	ctx := context.Background()
	argv := []string{"ray", "scene.txt", "4", "", "out.tga"}
	jm, err := bin.NewJobManager(ctx, argv, []byte("job-info"))
	if err != nil {
		t.Fatalf("NewJobManager: %v", err)
	}
	if jm.Handle().IsNil() {
		t.Error("handle should not be nil")
	}
	if !slices.Equal(gotArgv, argv) {
		t.Errorf("argv = %q, want %q", gotArgv, argv)
	}
	if string(gotInfo) != "job-info" {
		t.Errorf("jobinfo = %q", gotInfo)
	}
}

func TestJobManager_NoPushYieldsAbsentResult(t *testing.T) {
	bin, _ := openSpy(t, jobManagerExports(func(any, inproc.Push, spits.Context) spits.Status {
		return 0
	}))

	ctx := context.Background()
	jm, err := bin.NewJobManager(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewJobManager: %v", err)
	}

	res, err := jm.NextTask(ctx, spits.Context{})
	if err != nil {
		t.Fatalf("NextTask: %v", err)
	}
	if !res.Absent() || res.Data != nil {
		t.Errorf("Data = %v, want absent", res.Data)
	}
	if res.Pushed {
		t.Error("Pushed should be false")
	}
	if res.Context.IsSet() {
		t.Errorf("Context = %v, want unset", res.Context)
	}
	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
}

func TestJobManager_ContinuationIsReplayed(t *testing.T) {
	var seen []spits.Context
	bin, _ := openSpy(t, jobManagerExports(func(state any, push inproc.Push, ctx spits.Context) spits.Status {
		seen = append(seen, ctx)
		n := state.(*int)
		if *n == 3 {
			return 0
		}
		*n++
		push([]byte{byte(*n)}, spits.ContextOf(ctx.Addr()+10))
		return 1
	}))

	ctx := context.Background()
	jm, err := bin.NewJobManager(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewJobManager: %v", err)
	}

	var tasks [][]byte
	cont := spits.Context{}
	for {
		res, err := jm.NextTask(ctx, cont)
		if err != nil {
			t.Fatalf("NextTask: %v", err)
		}
		if res.Status == 0 {
			break
		}
		tasks = append(tasks, res.Data)
		cont = res.Context
	}

	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for i, task := range tasks {
		if len(task) != 1 || task[0] != byte(i+1) {
			t.Errorf("task %d = %v", i, task)
		}
	}
	wantAddrs := []uint64{0, 10, 20, 30}
	for i, c := range seen {
		if c.Addr() != wantAddrs[i] {
			t.Errorf("call %d got context %v, want addr %d", i, c, wantAddrs[i])
		}
	}
	if seen[0].IsSet() {
		t.Error("first call should receive the unset context")
	}
}

func TestJobManager_MissingRequiredSymbol(t *testing.T) {
	bin, _ := openSpy(t, inproc.Exports{
		JobManagerNew: func([]string, []byte) any { return nil },
	})

	_, err := bin.NewJobManager(context.Background(), nil, nil)
	if !isKind(err, errors.PhaseResolve, errors.KindMissingSymbol) {
		t.Fatalf("err = %v, want missing symbol", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Symbol != spits.SymJobManagerNextTask {
		t.Errorf("error should name %s, got %v", spits.SymJobManagerNextTask, err)
	}
}

func TestJobManager_FinalizeAbsentIsNoop(t *testing.T) {
	bin, spy := openSpy(t, jobManagerExports(func(any, inproc.Push, spits.Context) spits.Status {
		return 0
	}))

	ctx := context.Background()
	jm, err := bin.NewJobManager(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewJobManager: %v", err)
	}

	before := len(spy.invoked)
	if err := jm.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(spy.invoked) != before {
		t.Errorf("Finalize invoked module code: %v", spy.invoked[before:])
	}

	if _, err := jm.NextTask(ctx, spits.Context{}); !isKind(err, errors.PhaseCall, errors.KindState) {
		t.Errorf("NextTask after Finalize err = %v, want state error", err)
	}
	if err := jm.Finalize(ctx); !isKind(err, errors.PhaseCall, errors.KindState) {
		t.Errorf("second Finalize err = %v, want state error", err)
	}
}

func TestJobManager_FinalizePresentCalledOnce(t *testing.T) {
	calls := 0
	ex := jobManagerExports(func(any, inproc.Push, spits.Context) spits.Status { return 0 })
	ex.JobManagerFinalize = func(any) { calls++ }
	bin, _ := openSpy(t, ex)

	ctx := context.Background()
	jm, err := bin.NewJobManager(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewJobManager: %v", err)
	}
	_ = jm.Finalize(ctx)
	_ = jm.Finalize(ctx)
	if calls != 1 {
		t.Errorf("finalize called %d times, want 1", calls)
	}
}

func workerExports(run func(state any, task []byte, push inproc.Push, ctx spits.Context) spits.Status) inproc.Exports {
	return inproc.Exports{
		WorkerNew: func([]string) any { return nil },
		WorkerRun: run,
	}
}

func TestWorker_RunsAreIndependent(t *testing.T) {
	bin, _ := openSpy(t, workerExports(func(_ any, task []byte, push inproc.Push, ctx spits.Context) spits.Status {
		out := bytes.Clone(task)
		slices.Reverse(out)
		push(out, ctx)
		return 0
	}))

	ctx := context.Background()
	w, err := bin.NewWorker(ctx, []string{"worker"})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	first, err := w.Run(ctx, []byte("abcdef"), spits.Context{})
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	second, err := w.Run(ctx, []byte("xy"), spits.Context{})
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}

	if string(first.Data) != "fedcba" {
		t.Errorf("first = %q", first.Data)
	}
	if string(second.Data) != "yx" {
		t.Errorf("second = %q, leaked state from first run", second.Data)
	}
	if !second.Context.IsSet() {
		t.Error("pushed result should carry a set context")
	}
}

func TestWorker_EmptyTaskIsAbsent(t *testing.T) {
	var got []byte
	gotLen := -1
	bin, _ := openSpy(t, workerExports(func(_ any, task []byte, push inproc.Push, ctx spits.Context) spits.Status {
		got = task
		gotLen = len(task)
		push(nil, ctx)
		return 0
	}))

	ctx := context.Background()
	w, err := bin.NewWorker(ctx, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	res, err := w.Run(ctx, []byte{}, spits.Context{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != nil || gotLen != 0 {
		t.Errorf("module saw %v (len %d), want absent", got, gotLen)
	}
	if !res.Pushed || res.Data != nil {
		t.Errorf("Pushed=%v Data=%v, want pushed empty buffer", res.Pushed, res.Data)
	}
}

func TestWorker_MultiplePushIsAnError(t *testing.T) {
	bin, _ := openSpy(t, workerExports(func(_ any, task []byte, push inproc.Push, ctx spits.Context) spits.Status {
		push([]byte("first"), ctx)
		push([]byte("second"), ctx)
		return 7
	}))

	ctx := context.Background()
	w, err := bin.NewWorker(ctx, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	res, err := w.Run(ctx, []byte("t"), spits.Context{})
	if !isKind(err, errors.PhaseCall, errors.KindMultiplePush) {
		t.Fatalf("err = %v, want multiple push", err)
	}
	if string(res.Data) != "first" {
		t.Errorf("Data = %q, want first payload kept", res.Data)
	}
	if res.Status != 7 {
		t.Errorf("Status = %d, want module status passed through", res.Status)
	}
}

func TestWorker_OverlappingCallIsBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	bin, _ := openSpy(t, workerExports(func(_ any, task []byte, push inproc.Push, ctx spits.Context) spits.Status {
		close(started)
		<-release
		return 0
	}))

	ctx := context.Background()
	w, err := bin.NewWorker(ctx, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Run(ctx, []byte("a"), spits.Context{})
		done <- err
	}()

	<-started
	if _, err := w.Run(ctx, []byte("b"), spits.Context{}); !isKind(err, errors.PhaseCall, errors.KindBusy) {
		t.Errorf("overlapping Run err = %v, want busy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}

func TestWorker_PanicIsTrap(t *testing.T) {
	bin, _ := openSpy(t, workerExports(func(any, []byte, inproc.Push, spits.Context) spits.Status {
		panic("boom")
	}))

	ctx := context.Background()
	w, err := bin.NewWorker(ctx, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if _, err := w.Run(ctx, []byte("t"), spits.Context{}); !isKind(err, errors.PhaseCall, errors.KindTrap) {
		t.Fatalf("err = %v, want trap", err)
	}
	if _, err := w.Run(ctx, []byte("t"), spits.Context{}); !isKind(err, errors.PhaseCall, errors.KindTrap) {
		t.Fatalf("instance should stay usable after a trap, err = %v", err)
	}
}

func TestCommitter_SeesAllPitsBeforeCommitJob(t *testing.T) {
	type acc struct{ pits [][]byte }
	bin, _ := openSpy(t, inproc.Exports{
		CommitterNew: func([]string, []byte) any { return &acc{} },
		CommitterCommitPit: func(state any, result []byte) spits.Status {
			a := state.(*acc)
			a.pits = append(a.pits, bytes.Clone(result))
			return 0
		},
		CommitterCommitJob: func(state any, push inproc.Push, ctx spits.Context) spits.Status {
			a := state.(*acc)
			push(bytes.Join(a.pits, nil), ctx)
			return int32Status(len(a.pits))
		},
	})

	ctx := context.Background()
	c, err := bin.NewCommitter(ctx, nil, nil)
	if err != nil {
		t.Fatalf("NewCommitter: %v", err)
	}

	p1 := []byte{1, 2, 3, 4}
	p2 := []byte{5, 6, 7, 8, 9, 10}
	for _, p := range [][]byte{p1, p2} {
		status, err := c.CommitPit(ctx, p)
		if err != nil || status != 0 {
			t.Fatalf("CommitPit: status=%d err=%v", status, err)
		}
	}

	res, err := c.CommitJob(ctx, spits.Context{})
	if err != nil {
		t.Fatalf("CommitJob: %v", err)
	}
	if res.Status != 2 {
		t.Errorf("Status = %d, want 2 pits seen", res.Status)
	}
	if !bytes.Equal(res.Data, append(bytes.Clone(p1), p2...)) {
		t.Errorf("Data = %v", res.Data)
	}
	if err := c.Finalize(ctx); err != nil {
		t.Errorf("Finalize: %v", err)
	}
}

func int32Status(n int) spits.Status { return spits.Status(int32(n)) }

func TestDispatcher_RoutesThroughMain(t *testing.T) {
	var runnerArgv []string
	var runnerInfo []byte
	bin, spy := openSpy(t, inproc.Exports{
		Main: func(argv []string, run inproc.RunFunc) spits.Status {
			status, data := run(append(argv, "--from-main"), []byte("info"))
			if string(data) != "done" {
				return 99
			}
			return status + 1
		},
	})

	status, err := bin.Dispatcher().Main(context.Background(), []string{"job"}, func(ctx context.Context, argv []string, jobinfo []byte) (spits.Status, []byte, error) {
		runnerArgv = argv
		runnerInfo = jobinfo
		return 41, []byte("done"), nil
	})
	if err != nil {
		t.Fatalf("Main: %v", err)
	}
	if status != 42 {
		t.Errorf("status = %d, want 42", status)
	}
	if !slices.Equal(runnerArgv, []string{"job", "--from-main"}) {
		t.Errorf("runner argv = %q", runnerArgv)
	}
	if string(runnerInfo) != "info" {
		t.Errorf("runner jobinfo = %q", runnerInfo)
	}

	roleSymbols := []string{
		spits.SymJobManagerNew, spits.SymJobManagerNextTask,
		spits.SymWorkerNew, spits.SymWorkerRun,
		spits.SymCommitterNew, spits.SymCommitterCommitPit, spits.SymCommitterCommitJob,
	}
	for _, name := range spy.lookups {
		if slices.Contains(roleSymbols, name) {
			t.Errorf("dispatcher resolved role symbol %s", name)
		}
	}
	if !slices.Equal(spy.invoked, []string{spits.SymMain}) {
		t.Errorf("invoked = %v, want only spits_main", spy.invoked)
	}
}

func TestDispatcher_RunnerErrorSurfaces(t *testing.T) {
	bin, _ := openSpy(t, inproc.Exports{
		Main: func(argv []string, run inproc.RunFunc) spits.Status {
			status, _ := run(argv, nil)
			return status
		},
	})

	boom := stderrors.New("runner failed")
	status, err := bin.Dispatcher().Main(context.Background(), nil, func(context.Context, []string, []byte) (spits.Status, []byte, error) {
		return 3, nil, boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want runner error", err)
	}
	if status != 3 {
		t.Errorf("status = %d, want 3", status)
	}
}

func TestDispatcher_FallsBackToRunner(t *testing.T) {
	bin, spy := openSpy(t, inproc.Exports{})

	called := false
	status, err := bin.Dispatcher().Main(context.Background(), []string{"a", "b"}, func(ctx context.Context, argv []string, jobinfo []byte) (spits.Status, []byte, error) {
		called = true
		if !slices.Equal(argv, []string{"a", "b"}) {
			t.Errorf("argv = %q", argv)
		}
		if jobinfo != nil {
			t.Errorf("jobinfo = %v, want absent", jobinfo)
		}
		return 5, nil, nil
	})
	if err != nil {
		t.Fatalf("Main: %v", err)
	}
	if !called || status != 5 {
		t.Errorf("called=%v status=%d", called, status)
	}
	if len(spy.invoked) != 0 {
		t.Errorf("module code invoked: %v", spy.invoked)
	}
}

func TestBinary_Exports(t *testing.T) {
	bin, _ := openSpy(t, workerExports(func(any, []byte, inproc.Push, spits.Context) spits.Status { return 0 }))

	present := map[string]bool{}
	for _, e := range bin.Exports() {
		present[e.Name] = e.Present
		if e.Name == spits.SymMain && e.Required {
			t.Error("spits_main should be optional")
		}
		if e.Name == spits.SymWorkerRun && (e.Shape != spits.ShapeRun || !e.Required) {
			t.Errorf("worker run export = %+v", e)
		}
	}
	if !present[spits.SymWorkerNew] || !present[spits.SymWorkerRun] {
		t.Error("worker symbols should be present")
	}
	if present[spits.SymJobManagerNew] {
		t.Error("job manager should be absent")
	}
}
