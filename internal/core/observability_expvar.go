package core

import (
	"context"
	"expvar"
	"fmt"
	"maps"
	"sync"
	"time"
)

// DefaultExpvarName is the /debug/vars key used when none is given.
const DefaultExpvarName = "smartloan"

// expvarNames serialises the lookup-then-publish in NewExpvarMetricsRecorder.
var expvarNames sync.Mutex

// OperationStats aggregates every call of one service operation.
type OperationStats struct {
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// ExpvarMetricsRecorder publishes per-operation call, error and latency
// totals under /debug/vars.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name. expvar names are
// process-global, so a taken name gets a numeric suffix; Name reports the one
// actually used.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = DefaultExpvarName
	}
	rec := &ExpvarMetricsRecorder{ops: make(map[string]OperationStats)}

	expvarNames.Lock()
	defer expvarNames.Unlock()
	rec.name = name
	for i := 2; expvar.Get(rec.name) != nil; i++ {
		rec.name = fmt.Sprintf("%s_%d", name, i)
	}
	expvar.Publish(rec.name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals keyed by operation.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.ops)
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ops[operation]
	st.Calls++
	if !success {
		st.Errors++
	}
	st.TotalMS += ms
	st.MaxMS = max(st.MaxMS, ms)
	r.ops[operation] = st
}
