// Package runner drives a job binary on one machine: one job manager, a
// pool of workers and one committer.
//
// The runner applies the SPITZ status conventions that the binding layer
// leaves opaque. A job manager returns 1 after pushing a task and 0 when it
// has none left; workers and committers return 0 on success. Any other
// status aborts the run.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
	"github.com/wippyai/spits/jobbinary"
)

// SPITZ status conventions.
const (
	StatusNoTask spits.Status = 0
	StatusTask   spits.Status = 1
	StatusOK     spits.Status = 0
)

// latency histogram range in microseconds
const (
	minLatency = 1
	maxLatency = int64(time.Hour / time.Microsecond)
)

// Options configures a run.
type Options struct {
	// Workers is the number of worker instances. Defaults to 1.
	Workers int
	// Argv and JobInfo are passed to every *_new symbol.
	Argv    []string
	JobInfo []byte
	// Progress receives events from the runner goroutines, one at a time.
	// It must not block.
	Progress func(Event)
}

// Runner executes jobs of one binary.
type Runner struct {
	bin  *jobbinary.Binary
	opts Options
}

// New returns a runner for bin.
func New(bin *jobbinary.Binary, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{bin: bin, opts: opts}
}

// Run executes the job with the configured argv and job info.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.run(ctx, r.opts.Argv, r.opts.JobInfo)
}

// Main runs the job through spits_main. The binary decides the argv and
// job info the job is created with.
func (r *Runner) Main(ctx context.Context) (spits.Status, *Report, error) {
	var rep *Report
	status, err := r.bin.Dispatcher().Main(ctx, r.opts.Argv, func(ctx context.Context, argv []string, jobinfo []byte) (spits.Status, []byte, error) {
		var runErr error
		rep, runErr = r.run(ctx, argv, jobinfo)
		if runErr != nil {
			return -1, nil, runErr
		}
		return StatusOK, rep.Final, nil
	})
	return status, rep, err
}

type task struct {
	id   uint64
	data []byte
}

type result struct {
	task    uint64
	data    []byte
	pushed  bool
	latency time.Duration
}

type run struct {
	opts   Options
	report *Report
	log    *zap.Logger
	cancel context.CancelFunc

	tasks     atomic.Int64
	taskBytes atomic.Int64
	results   atomic.Int64

	emitMu  sync.Mutex
	errOnce sync.Once
	err     error
}

func (rn *run) fail(err error) {
	rn.errOnce.Do(func() {
		rn.err = err
		rn.cancel()
		rn.log.Warn("run aborted", zap.Error(err))
	})
}

func (rn *run) emit(ev Event) {
	if rn.opts.Progress == nil {
		return
	}
	ev.RunID = rn.report.RunID
	ev.Tasks = rn.tasks.Load()
	ev.Results = rn.results.Load()

	rn.emitMu.Lock()
	defer rn.emitMu.Unlock()
	rn.opts.Progress(ev)
}

func (r *Runner) run(ctx context.Context, argv []string, jobinfo []byte) (rep *Report, err error) {
	rep = &Report{RunID: xid.New(), Workers: r.opts.Workers}
	start := time.Now()
	defer func() { rep.Elapsed = time.Since(start) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// instances are retired even when the run was cancelled
	cleanup := context.WithoutCancel(ctx)

	rn := &run{
		opts:   r.opts,
		report: rep,
		log:    Logger().With(zap.Stringer("run", rep.RunID), zap.String("binary", r.bin.Path())),
		cancel: cancel,
	}

	jm, err := r.bin.NewJobManager(ctx, argv, jobinfo)
	if err != nil {
		return rep, err
	}
	defer func() { err = multierr.Append(err, jm.Finalize(cleanup)) }()

	committer, err := r.bin.NewCommitter(ctx, argv, jobinfo)
	if err != nil {
		return rep, err
	}
	defer func() { err = multierr.Append(err, committer.Finalize(cleanup)) }()

	workers := make([]*jobbinary.Worker, 0, r.opts.Workers)
	defer func() {
		for _, w := range workers {
			err = multierr.Append(err, w.Finalize(cleanup))
		}
	}()
	for i := 0; i < r.opts.Workers; i++ {
		w, werr := r.bin.NewWorker(ctx, argv)
		if werr != nil {
			return rep, werr
		}
		workers = append(workers, w)
	}

	rn.log.Debug("run started", zap.Int("workers", len(workers)))
	rn.emit(Event{Kind: EventStarted})

	tasks := make(chan task, len(workers))
	results := make(chan result, len(workers))

	go rn.produce(ctx, jm, tasks)

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *jobbinary.Worker) {
			defer wg.Done()
			rn.work(ctx, w, xid.New(), tasks, results)
		}(w)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	hist := hdrhistogram.New(minLatency, maxLatency, 3)
	for res := range results {
		if err := hist.RecordValue(max(res.latency.Microseconds(), minLatency)); err != nil {
			rn.log.Debug("latency out of range", zap.Duration("latency", res.latency))
		}
		if ctx.Err() != nil {
			continue
		}
		if !res.pushed {
			rep.Unpushed++
			continue
		}

		status, cerr := committer.CommitPit(ctx, res.data)
		if cerr != nil {
			rn.fail(cerr)
			continue
		}
		if status != StatusOK {
			rn.fail(errors.Status(spits.SymCommitterCommitPit, int32(status)))
			continue
		}
		rn.results.Inc()
		rep.ResultBytes += int64(len(res.data))
		rn.emit(Event{Kind: EventResult, Task: res.task, Bytes: len(res.data), Latency: res.latency})
	}

	rep.Tasks = rn.tasks.Load()
	rep.TaskBytes = rn.taskBytes.Load()
	rep.Results = rn.results.Load()
	rep.Latency = latencyOf(hist)

	if rn.err == nil {
		if err := ctx.Err(); err != nil {
			rn.err = err
		}
	}
	if rn.err != nil {
		rn.emit(Event{Kind: EventFinished, Err: rn.err})
		return rep, rn.err
	}

	final, err := committer.CommitJob(ctx, spits.Context{})
	if err != nil {
		return rep, err
	}
	if final.Status != StatusOK {
		return rep, errors.Status(spits.SymCommitterCommitJob, int32(final.Status))
	}
	rep.Final = final.Data

	rn.log.Info("run finished",
		zap.Int64("tasks", rep.Tasks),
		zap.Int64("results", rep.Results),
		zap.Int("final_bytes", len(rep.Final)),
		zap.Duration("elapsed", time.Since(start)))
	rn.emit(Event{Kind: EventCommitted, Bytes: len(rep.Final)})
	rn.emit(Event{Kind: EventFinished})
	return rep, nil
}

// produce pulls tasks until the job manager reports none left. Each call
// gets the context pushed with the previous task.
func (rn *run) produce(ctx context.Context, jm *jobbinary.JobManager, tasks chan<- task) {
	defer close(tasks)

	cont := spits.Context{}
	for id := uint64(1); ; id++ {
		res, err := jm.NextTask(ctx, cont)
		if err != nil {
			rn.fail(err)
			return
		}
		if res.Status != StatusNoTask && res.Status != StatusTask {
			rn.fail(errors.Status(spits.SymJobManagerNextTask, int32(res.Status)))
			return
		}
		if res.Status == StatusNoTask || !res.Pushed {
			rn.log.Debug("job manager drained", zap.Uint64("tasks", id-1), zap.Int32("status", int32(res.Status)))
			return
		}
		cont = res.Context

		rn.tasks.Inc()
		rn.taskBytes.Add(int64(len(res.Data)))
		rn.emit(Event{Kind: EventTask, Task: id, Bytes: len(res.Data)})

		select {
		case tasks <- task{id: id, data: res.Data}:
		case <-ctx.Done():
			return
		}
	}
}

// work runs tasks on one worker instance. After a failure it keeps
// draining so that the producer can exit.
func (rn *run) work(ctx context.Context, w *jobbinary.Worker, id xid.ID, tasks <-chan task, results chan<- result) {
	log := rn.log.With(zap.Stringer("worker", id))
	for t := range tasks {
		if ctx.Err() != nil {
			continue
		}

		start := time.Now()
		res, err := w.Run(ctx, t.data, spits.ContextOf(t.id))
		if err != nil {
			rn.fail(err)
			continue
		}
		if res.Status != StatusOK {
			rn.fail(errors.Status(spits.SymWorkerRun, int32(res.Status)))
			continue
		}
		log.Debug("task done", zap.Uint64("task", t.id), zap.Int("bytes", len(res.Data)))

		select {
		case results <- result{task: t.id, data: res.Data, pushed: res.Pushed, latency: time.Since(start)}:
		case <-ctx.Done():
		}
	}
}
