package observe

import (
	"bufio"
	"io"
	"sync"
	"time"

	events "github.com/docker/go-events"
	"github.com/francoispqt/gojay"
)

// TraceSink writes one JSON object per event (JSON lines), with times
// relative to the first event.
type TraceSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	enc    *gojay.Encoder
	start  time.Time
	err    error
}

// NewTraceSink creates a trace writer. If w is an io.Closer it is closed
// with the sink.
func NewTraceSink(w io.Writer) *TraceSink {
	bw := bufio.NewWriter(w)
	t := &TraceSink{w: bw, enc: gojay.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

type traceEvent struct {
	Event
	rel time.Duration
}

func (e traceEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("time", float64(e.rel)/float64(time.Millisecond))
	enc.StringKey("name", e.Kind.String())
	enc.Uint64Key("seq", uint64(e.Seq))
	enc.IntKeyOmitEmpty("len", e.Len)
	if e.RTO > 0 {
		enc.Float64Key("rto_ms", float64(e.RTO)/float64(time.Millisecond))
	}
	if e.Cwnd > 0 {
		enc.Uint64Key("cwnd", uint64(e.Cwnd))
		enc.Uint64Key("ssthresh", uint64(e.SSThresh))
	}
	enc.StringKeyOmitEmpty("phase", e.Phase)
	if e.Elapsed > 0 {
		enc.Float64Key("elapsed_ms", float64(e.Elapsed)/float64(time.Millisecond))
	}
}

func (e traceEvent) IsNil() bool { return false }

func (t *TraceSink) Write(ev events.Event) error {
	e, ok := ev.(Event)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.start.IsZero() {
		t.start = e.Time
	}
	if err := t.enc.EncodeObject(traceEvent{Event: e, rel: e.Time.Sub(t.start)}); err != nil {
		t.err = err
		return err
	}
	if err := t.w.WriteByte('\n'); err != nil {
		t.err = err
	}
	return t.err
}

// Close flushes buffered output.
func (t *TraceSink) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.w.Flush()
	if t.closer != nil {
		if cerr := t.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
