package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/spits/examples/mandel"
	"github.com/wippyai/spits/examples/pi"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "spits "+Version+"\n", out)
}

func TestInspect_Inproc(t *testing.T) {
	out, err := execute(t, "inspect", "inproc:pi")
	require.NoError(t, err)

	assert.Contains(t, out, "backend  inproc")
	assert.Contains(t, out, "main     true")
	assert.Regexp(t, `spits_worker_run\s+run\s+required\s+true`, out)
	assert.Regexp(t, `spits_main\s+main\s+optional\s+true`, out)
}

func TestInspect_Unknown(t *testing.T) {
	_, err := execute(t, "inspect", "inproc:does-not-exist")
	assert.Error(t, err)
}

func TestRun_WritesOutput(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "pi.bin")
	out, err := execute(t, "run", "-w", "2", "-o", dst, "--log-level", "warn",
		"inproc:pi", "pi", "20000", "1000")
	require.NoError(t, err)

	assert.Contains(t, out, "workers  2")
	assert.Contains(t, out, "tasks    20 ")
	assert.Contains(t, out, "final result written to "+dst)

	final, err := os.ReadFile(dst)
	require.NoError(t, err)
	estimate, samples, err := pi.Decode(final)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), samples)
	assert.InDelta(t, 3.14159, estimate, 0.1)
}

func TestRun_CommitterWritesOnFinalize(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "mandel.pgm")
	_, err := execute(t, "run", "-w", "3", "--log-level", "error",
		"inproc:mandel", "mandel", "30", "20", "4", dst)
	require.NoError(t, err)

	want := make([]byte, 0, 30*20)
	for y := int32(0); y < 20; y++ {
		for x := int32(0); x < 30; x++ {
			want = append(want, mandel.Pixel(x, y, 30, 20))
		}
	}
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, mandel.EncodePGM(want, 30, 20), got)
}

func TestRun_ThroughMain(t *testing.T) {
	out, err := execute(t, "run", "--main", "-w", "1", "--log-level", "error",
		"inproc:pi", "pi", "5000", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "tasks    5 ")
}

func TestRun_FlagsOverrideJobFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
binary: inproc:pi
argv: [pi, "4000", "1000"]
workers: 1
logging:
  level: error
`), 0o644))

	out, err := execute(t, "run", "-c", file, "-w", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "workers  3")
	assert.Contains(t, out, "tasks    4 ")
}

func TestRun_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no binary", []string{"run"}},
		{"zero workers", []string{"run", "-w", "0", "inproc:pi"}},
		{"bad backend", []string{"run", "--backend", "jvm", "inproc:pi"}},
		{"bad level", []string{"run", "--log-level", "loud", "inproc:pi"}},
		{"unknown inproc", []string{"run", "--log-level", "error", "inproc:nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunFlags_DefaultArgv(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-w", "2"}))

	var f runFlags
	f.workers = 2
	job, err := f.job(cmd, []string{"/opt/jobs/libpi.so"})
	require.NoError(t, err)
	assert.Equal(t, []string{"libpi.so"}, job.Argv)
	assert.Equal(t, 2, job.Workers)
}
