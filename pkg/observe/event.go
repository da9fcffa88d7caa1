// Package observe carries transport events to pluggable sinks: logs,
// metrics and a JSON trace. Sinks are go-events sinks fanned out through
// a Hub so the protocol loop never waits on them.
package observe

import (
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind uint8

const (
	SegmentSent Kind = iota + 1
	SegmentAcked
	Retransmission
	FastRetransmit
	Timeout
	RTOChanged
	CwndChanged
	Stalled
	Completed
)

func (k Kind) String() string {
	switch k {
	case SegmentSent:
		return "segment_sent"
	case SegmentAcked:
		return "segment_acked"
	case Retransmission:
		return "retransmission"
	case FastRetransmit:
		return "fast_retransmit"
	case Timeout:
		return "timeout"
	case RTOChanged:
		return "rto_changed"
	case CwndChanged:
		return "cwnd_changed"
	case Stalled:
		return "stalled"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is a discrete transport occurrence. Fields not relevant to Kind are zero.
type Event struct {
	Time     time.Time
	Kind     Kind
	Seq      uint32
	Len      int
	RTO      time.Duration
	Cwnd     uint32
	SSThresh uint32
	Phase    string
	Elapsed  time.Duration // session duration, for Stalled and Completed
}

// Observer receives events from the protocol loop. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Nop discards events.
var Nop Observer = ObserverFunc(func(Event) {})

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
