package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/config"
	"github.com/wippyai/spits/runner"
)

type runFlags struct {
	configFile  string
	backend     string
	workers     int
	jobInfo     string
	jobInfoFile string
	output      string
	useMain     bool
	timeout     time.Duration
	memoryPages uint32
	logLevel    string
	logFile     string
	interactive bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] [binary [args...]]",
		Short: "Run a job binary with a local job manager, workers and committer",
		Example: `  # native shared object, 8 workers
  spits run -w 8 ./libraytracer.so scene.txt 4 2 out.tga

  # job file, entry point, progress view
  spits run -c job.yaml --main -i

  # Go job binaries built into spits
  spits run inproc:pi pi 1000000
  spits run inproc:mandel mandel 800 600 32 mandel.pgm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := f.job(cmd, args)
			if err != nil {
				return err
			}
			return runJob(cmd.Context(), job, f.interactive, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	// arguments after the binary belong to the module
	cmd.Flags().SetInterspersed(false)

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "job file (YAML)")
	fl.StringVar(&f.backend, "backend", "", "native, wasm or inproc (default: from the binary)")
	fl.IntVarP(&f.workers, "workers", "w", 0, "number of worker instances (default: number of CPUs)")
	fl.StringVar(&f.jobInfo, "jobinfo", "", "job info passed to the job manager and committer")
	fl.StringVar(&f.jobInfoFile, "jobinfo-file", "", "read job info from a file")
	fl.StringVarP(&f.output, "output", "o", "", "write the final result to a file")
	fl.BoolVar(&f.useMain, "main", false, "run through spits_main when the binary exports it")
	fl.DurationVar(&f.timeout, "timeout", 0, "abort the run after this long")
	fl.Uint32Var(&f.memoryPages, "memory-pages", 0, "wasm memory limit in 64KiB pages")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.logFile, "log-file", "", "also log to a rotating file")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "show a progress view on a terminal")
	return cmd
}

// job merges the job file, flags and positional arguments. Flags win.
func (f *runFlags) job(cmd *cobra.Command, args []string) (*config.Job, error) {
	job := config.Default()
	if f.configFile != "" {
		var err error
		if job, err = config.Load(f.configFile); err != nil {
			return nil, err
		}
	}

	if len(args) > 0 {
		job.Binary = args[0]
		job.Argv = args[1:]
	}
	changed := cmd.Flags().Changed
	if changed("backend") {
		job.Backend = config.Backend(f.backend)
	}
	if changed("workers") {
		job.Workers = f.workers
	}
	if changed("jobinfo") {
		job.JobInfo, job.JobInfoFile = f.jobInfo, ""
	}
	if changed("jobinfo-file") {
		job.JobInfo, job.JobInfoFile = "", f.jobInfoFile
	}
	if changed("output") {
		job.Output = f.output
	}
	if changed("main") {
		job.UseMain = f.useMain
	}
	if changed("timeout") {
		job.Timeout = f.timeout
	}
	if changed("memory-pages") {
		job.MemoryLimitPages = f.memoryPages
	}
	if changed("log-level") {
		job.Logging.Level = f.logLevel
	}
	if changed("log-file") {
		job.Logging.File = f.logFile
	}

	// SPITZ modules expect argv[0] to name the binary
	if len(job.Argv) == 0 && job.Binary != "" {
		job.Argv = []string{filepath.Base(job.Binary)}
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func runJob(ctx context.Context, job *config.Job, interactive bool, stdout, stderr io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if job.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, job.Timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the progress view owns the terminal; logs go to the file only
	interactive = interactive && isTerminal(stdout)
	console := stderr
	if interactive {
		console = io.Discard
	}
	log, closeLog, err := newLogger(job.Logging, console)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { err = multierr.Append(err, closeLog()) }()
	installLogger(log)

	jobInfo, err := job.JobInfoBytes()
	if err != nil {
		return err
	}

	bin, err := openBinary(ctx, job)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, bin.Close(context.WithoutCancel(ctx))) }()

	opts := runner.Options{
		Workers: job.Workers,
		Argv:    job.Argv,
		JobInfo: jobInfo,
	}

	var (
		rep    *runner.Report
		status int32
		runErr error
	)
	exec := func(progress func(runner.Event)) {
		opts.Progress = progress
		r := runner.New(bin, opts)
		if job.UseMain {
			var st spits.Status
			st, rep, runErr = r.Main(ctx)
			status = int32(st)
			return
		}
		rep, runErr = r.Run(ctx)
	}

	if interactive {
		if err := runWithProgress(bin.Path(), cancel, exec); err != nil {
			return err
		}
	} else {
		exec(nil)
	}

	if rep != nil {
		printReport(stdout, bin.Path(), rep)
	}
	if runErr != nil {
		return runErr
	}
	if job.UseMain && status != 0 {
		log.Warn("spits_main returned non-zero", zap.Int32("status", status))
		return fmt.Errorf("spits_main returned status %d", status)
	}

	if job.Output != "" && rep != nil {
		if err := os.WriteFile(job.Output, rep.Final, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(stdout, "final result written to %s\n", job.Output)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printReport(w io.Writer, path string, rep *runner.Report) {
	fmt.Fprintf(w, "run %s of %s\n", rep.RunID, path)
	fmt.Fprintf(w, "  workers  %d\n", rep.Workers)
	fmt.Fprintf(w, "  tasks    %d (%d bytes)\n", rep.Tasks, rep.TaskBytes)
	fmt.Fprintf(w, "  results  %d (%d bytes)", rep.Results, rep.ResultBytes)
	if rep.Unpushed > 0 {
		fmt.Fprintf(w, ", %d without result", rep.Unpushed)
	}
	fmt.Fprintln(w)
	if rep.Latency.Count > 0 {
		fmt.Fprintf(w, "  latency  p50 %v  p90 %v  p99 %v  max %v\n",
			rep.Latency.P50, rep.Latency.P90, rep.Latency.P99, rep.Latency.Max)
	}
	fmt.Fprintf(w, "  final    %d bytes\n", len(rep.Final))
	fmt.Fprintf(w, "  elapsed  %v\n", rep.Elapsed.Round(time.Millisecond))
}
