// Package config loads the description of a local job run from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/spits/errors"
)

// Backend selects how a job binary is loaded.
type Backend string

const (
	BackendAuto   Backend = ""
	BackendNative Backend = "native"
	BackendWasm   Backend = "wasm"
	BackendInproc Backend = "inproc"
)

// InprocScheme prefixes binaries registered in the running process.
const InprocScheme = "inproc:"

// Job describes one run of a job binary.
type Job struct {
	// Binary is a shared object, a .wasm file or inproc:<name>.
	Binary  string  `yaml:"binary"`
	Backend Backend `yaml:"backend,omitempty"`
	// Argv is passed to every *_new symbol and to spits_main. By SPITZ
	// convention argv[0] names the binary.
	Argv []string `yaml:"argv,omitempty"`
	// JobInfo is passed inline; JobInfoFile is read when JobInfo is empty.
	JobInfo     string `yaml:"jobinfo,omitempty"`
	JobInfoFile string `yaml:"jobinfo_file,omitempty"`

	Workers int    `yaml:"workers"`
	Output  string `yaml:"output,omitempty"`
	// UseMain routes the run through spits_main when the binary exports it.
	UseMain bool          `yaml:"use_main,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MemoryLimitPages caps wasm guest memory in 64KiB pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty"`

	Logging Logging `yaml:"logging"`
}

// Logging configures the CLI logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development,omitempty"`
	// File enables a rotating log file next to stderr output.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// Default returns a job with every optional field set.
func Default() *Job {
	return &Job{
		Workers: runtime.NumCPU(),
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads path over the defaults. A relative binary path is resolved
// against the directory of the file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read job file")
	}
	job, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if job.Binary != "" && !strings.HasPrefix(job.Binary, InprocScheme) && !filepath.IsAbs(job.Binary) {
		job.Binary = filepath.Join(dir, job.Binary)
	}
	if job.JobInfoFile != "" && !filepath.IsAbs(job.JobInfoFile) {
		job.JobInfoFile = filepath.Join(dir, job.JobInfoFile)
	}
	return job, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Job, error) {
	job := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(job); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse job file")
	}
	return job, nil
}

// Marshal encodes the job as YAML.
func (j *Job) Marshal() ([]byte, error) {
	return yaml.Marshal(j)
}

// ResolvedBackend returns the backend, inferring it from the binary when
// it is not set.
func (j *Job) ResolvedBackend() Backend {
	if j.Backend != BackendAuto {
		return j.Backend
	}
	switch {
	case strings.HasPrefix(j.Binary, InprocScheme):
		return BackendInproc
	case strings.EqualFold(filepath.Ext(j.Binary), ".wasm"):
		return BackendWasm
	default:
		return BackendNative
	}
}

// JobInfoBytes returns the job info payload, nil when none is configured.
func (j *Job) JobInfoBytes() ([]byte, error) {
	if j.JobInfo != "" {
		return []byte(j.JobInfo), nil
	}
	if j.JobInfoFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(j.JobInfoFile)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read job info")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Validate reports every invalid field.
func (j *Job) Validate() error {
	var errs error
	invalid := func(field, format string, args ...any) {
		errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(field).
			Detail("%s: %s", field, fmt.Sprintf(format, args...)).
			Build())
	}

	if j.Binary == "" {
		invalid("binary", "required")
	}
	switch j.Backend {
	case BackendAuto, BackendNative, BackendWasm, BackendInproc:
	default:
		invalid("backend", "unknown backend %q", j.Backend)
	}
	if j.ResolvedBackend() == BackendInproc && !strings.HasPrefix(j.Binary, InprocScheme) {
		invalid("binary", "inproc backend needs an %s<name> binary", InprocScheme)
	}
	if j.Workers < 1 {
		invalid("workers", "must be at least 1, got %d", j.Workers)
	}
	if j.Timeout < 0 {
		invalid("timeout", "must not be negative")
	}
	if j.JobInfo != "" && j.JobInfoFile != "" {
		invalid("jobinfo", "set either jobinfo or jobinfo_file")
	}
	for i, arg := range j.Argv {
		if strings.IndexByte(arg, 0) >= 0 {
			invalid("argv", "argument %d contains NUL", i)
		}
	}
	switch strings.ToLower(j.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid("logging.level", "unknown level %q", j.Logging.Level)
	}
	if j.Logging.File != "" && (j.Logging.MaxSizeMB < 1 || j.Logging.MaxBackups < 0) {
		invalid("logging", "max_size_mb must be positive and max_backups not negative")
	}
	return errs
}
