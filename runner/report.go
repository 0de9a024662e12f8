package runner

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/rs/xid"
)

// EventKind identifies a progress event.
type EventKind uint8

const (
	EventStarted EventKind = iota
	// EventTask: the job manager produced a task.
	EventTask
	// EventResult: a partial result was committed.
	EventResult
	// EventCommitted: the committer produced the final result.
	EventCommitted
	// EventFinished is always the last event. Err is set when the run
	// failed.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventTask:
		return "task"
	case EventResult:
		return "result"
	case EventCommitted:
		return "committed"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event reports run progress. Tasks and Results are running totals.
type Event struct {
	Kind    EventKind
	RunID   xid.ID
	Task    uint64
	Bytes   int
	Latency time.Duration
	Tasks   int64
	Results int64
	Err     error
}

// Latency summarizes worker run times.
type Latency struct {
	Count int64
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

func latencyOf(h *hdrhistogram.Histogram) Latency {
	if h.TotalCount() == 0 {
		return Latency{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Latency{
		Count: h.TotalCount(),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P99:   us(h.ValueAtQuantile(99)),
		Max:   us(h.Max()),
	}
}

// Report summarizes a run. It is returned with the counts reached even
// when the run fails.
type Report struct {
	RunID   xid.ID
	Workers int
	Tasks   int64
	// Results counts committed partial results. Unpushed counts worker
	// runs that succeeded without pushing anything; they are not committed.
	Results     int64
	Unpushed    int64
	TaskBytes   int64
	ResultBytes int64
	// Final is the buffer pushed by spits_committer_commit_job, nil when
	// absent.
	Final   []byte
	Elapsed time.Duration
	Latency Latency
}
