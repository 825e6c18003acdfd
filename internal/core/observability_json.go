package core

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sync"
	"time"

	"smartloan/pkg/domain"
)

// TraceRecord is one finished span as written by JSONTracer.
type TraceRecord struct {
	Operation  string    `json:"op"`
	OK         bool      `json:"ok"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Start      time.Time `json:"start"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes each finished span as one JSON line and keeps the records
// for Records.
type JSONTracer struct {
	mu      sync.Mutex
	records []TraceRecord
	enc     *json.Encoder
}

// NewJSONTracer writes to w; a nil w only retains records.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns the finished spans in completion order.
func (t *JSONTracer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.records)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, start: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	start     time.Time
}

func (s *jsonSpan) End(err error) {
	rec := TraceRecord{
		Operation:  s.operation,
		OK:         err == nil,
		Start:      s.start,
		DurationMS: float64(time.Since(s.start)) / float64(time.Millisecond),
	}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorKind = string(domain.KindOf(err))
	}
	t := s.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
}
