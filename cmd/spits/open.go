package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/config"
	"github.com/wippyai/spits/inproc"
	"github.com/wippyai/spits/jobbinary"
	"github.com/wippyai/spits/native"
	"github.com/wippyai/spits/wasm"
)

// openBinary loads the job's binary with its backend.
func openBinary(ctx context.Context, job *config.Job) (*jobbinary.Binary, error) {
	var (
		lib spits.Library
		err error
	)
	switch backend := job.ResolvedBackend(); backend {
	case config.BackendInproc:
		lib, err = inproc.Open(strings.TrimPrefix(job.Binary, config.InprocScheme))
	case config.BackendWasm:
		lib, err = wasm.Open(ctx, job.Binary, &wasm.Config{
			MemoryLimitPages: job.MemoryLimitPages,
			Stdout:           os.Stdout,
			Stderr:           os.Stderr,
		})
	case config.BackendNative:
		lib, err = native.Open(job.Binary)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return jobbinary.Open(lib)
}
