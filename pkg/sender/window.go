// Package sender implements the selective-repeat send window: segment
// carving, cumulative and selective acknowledgment, duplicate-ack fast
// retransmit and per-segment retransmission timers.
package sender

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/btree"

	"github.com/TeoSlayer/sackudp/pkg/congestion"
	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
	"github.com/TeoSlayer/sackudp/pkg/rtt"
)

// DefaultMaxRetransmits is the per-segment retry budget.
const DefaultMaxRetransmits = 8

// ErrRetriesExhausted is returned once a segment has been retransmitted more
// times than the budget allows.
var ErrRetriesExhausted = errors.New("retransmission budget exhausted")

// MaxStreamLen is the longest stream whose offsets, plus the EOF marker
// after it, fit the 32-bit sequence space.
const MaxStreamLen = math.MaxUint32 - 3

// ErrStreamTooLarge is returned for streams longer than MaxStreamLen.
var ErrStreamTooLarge = errors.New("stream exceeds the 32-bit sequence space")

// CheckLength reports whether a stream of n bytes can be sent.
func CheckLength(n int) error {
	if uint64(n) > MaxStreamLen {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrStreamTooLarge, n, uint64(MaxStreamLen))
	}
	return nil
}

// Output carries encoded segments to the peer.
type Output interface {
	Transmit(seq uint32, payload []byte) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(seq uint32, payload []byte) error

func (f OutputFunc) Transmit(seq uint32, payload []byte) error { return f(seq, payload) }

// Config wires a Window to its collaborators.
type Config struct {
	Controller     congestion.Controller
	Estimator      *rtt.Estimator
	Output         Output
	Observer       observe.Observer
	Logger         *slog.Logger
	MSS            int
	MaxRetransmits int
}

func (c *Config) mss() int {
	if c.MSS > 0 && c.MSS <= protocol.MSS {
		return c.MSS
	}
	return protocol.MSS
}

func (c *Config) maxRetransmits() int {
	if c.MaxRetransmits > 0 {
		return c.MaxRetransmits
	}
	return DefaultMaxRetransmits
}

// record is a sent-but-unacknowledged data segment.
type record struct {
	seq           uint32
	payload       []byte
	sentAt        time.Time
	deadline      time.Time
	attempts      int  // retransmissions so far
	retransmitted bool // never sample RTT from this record (Karn)
	confirmed     bool // covered by a SACK block; timer cancelled
}

func (r *record) end() uint32 { return r.seq + uint32(len(r.payload)) }

func recordLess(a, b *record) bool { return a.seq < b.seq }

// Stats tracks sender activity.
type Stats struct {
	SegmentsSent    uint64 // first transmissions
	Retransmits     uint64 // timeout retransmissions
	FastRetransmits uint64 // duplicate-ack and partial-ack retransmissions
	Timeouts        uint64 // timer ticks that found expired segments
	AcksReceived    uint64
	DupAcks         uint64
	SACKed          uint64 // segments confirmed by SACK
	BytesAcked      uint64
}

// Window is the selective-repeat sender for one byte stream.
// It is not safe for concurrent use; the transport loop owns it.
type Window struct {
	ctrl    congestion.Controller
	est     *rtt.Estimator
	out     Output
	obs     observe.Observer
	log     *slog.Logger
	mss     int
	maxRetx int

	data     []byte
	total    uint32
	base     uint32
	nextSeq  uint32
	inflight *btree.BTreeG[*record]
	timers   timerQueue
	dupAcks  int

	stats Stats
}

// New creates a window that will send data. It panics if data is longer
// than MaxStreamLen; callers check with CheckLength first.
func New(data []byte, cfg Config) *Window {
	if err := CheckLength(len(data)); err != nil {
		panic(err)
	}
	if cfg.Controller == nil {
		cfg.Controller = congestion.NewCubic(congestion.Config{MSS: uint32(cfg.mss())})
	}
	if cfg.Estimator == nil {
		cfg.Estimator = rtt.New(rtt.Config{})
	}
	if cfg.Observer == nil {
		cfg.Observer = observe.Nop
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Output == nil {
		cfg.Output = OutputFunc(func(uint32, []byte) error { return nil })
	}
	return &Window{
		ctrl:     cfg.Controller,
		est:      cfg.Estimator,
		out:      cfg.Output,
		obs:      cfg.Observer,
		log:      cfg.Logger,
		mss:      cfg.mss(),
		maxRetx:  cfg.maxRetransmits(),
		data:     data,
		total:    uint32(len(data)),
		inflight: btree.NewG(16, recordLess),
	}
}

// Fill sends new segments while the congestion window has room.
func (w *Window) Fill(now time.Time) int {
	sent := 0
	for w.nextSeq < w.total && w.nextSeq-w.base < w.ctrl.Window() {
		n := w.carve(w.nextSeq)
		rec := &record{
			seq:      w.nextSeq,
			payload:  w.data[w.nextSeq : w.nextSeq+uint32(n)],
			sentAt:   now,
			deadline: now.Add(w.est.RTO()),
		}
		w.inflight.ReplaceOrInsert(rec)
		w.timers.schedule(rec.seq, rec.deadline)
		w.nextSeq += uint32(n)
		w.stats.SegmentsSent++
		sent++
		w.transmit(rec, observe.SegmentSent, now)
	}
	return sent
}

// carve returns the length of the next segment at seq. A regular segment is
// never exactly the EOF marker.
func (w *Window) carve(seq uint32) int {
	n := int(w.total - seq)
	if n > w.mss {
		n = w.mss
	}
	if protocol.IsEOF(w.data[seq : seq+uint32(n)]) {
		n--
	}
	return n
}

// OnAck processes one acknowledgment from the peer.
func (w *Window) OnAck(ack protocol.Ack, now time.Time) {
	w.stats.AcksReceived++
	cum := ack.Cumulative
	if cum > w.nextSeq {
		cum = w.nextSeq
	}
	w.onSACK(ack.SACK)
	switch {
	case cum > w.base:
		w.onCumulativeAck(cum, now)
	case cum == w.base && w.base < w.nextSeq:
		w.onDuplicateAck(now)
	}
}

func (w *Window) onCumulativeAck(cum uint32, now time.Time) {
	var sample time.Duration
	if rec, ok := w.inflight.Min(); ok && rec.seq == w.base && !rec.retransmitted {
		sample = now.Sub(rec.sentAt)
		prev := w.est.RTO()
		w.est.OnSample(sample)
		if w.est.RTO() != prev {
			w.obs.Observe(observe.Event{Time: now, Kind: observe.RTOChanged, RTO: w.est.RTO()})
		}
	}

	for {
		rec, ok := w.inflight.Min()
		if !ok || rec.end() > cum {
			break
		}
		w.inflight.DeleteMin()
		w.obs.Observe(observe.Event{Time: now, Kind: observe.SegmentAcked, Seq: rec.seq, Len: len(rec.payload)})
	}

	acked := cum - w.base
	w.base = cum
	w.dupAcks = 0
	w.stats.BytesAcked += uint64(acked)

	before := w.ctrl.State()
	w.ctrl.OnAck(cum, acked, sample)
	after := w.observeCwnd(before, now)

	// Partial ack during recovery: the new base is the next hole.
	if after.Phase == congestion.FastRecovery && w.base < w.nextSeq {
		if rec, ok := w.inflight.Min(); ok && rec.seq == w.base && !rec.confirmed {
			w.retransmit(rec, observe.FastRetransmit, now)
			w.stats.FastRetransmits++
		}
	}
}

func (w *Window) onSACK(blocks []protocol.SACKBlock) {
	for _, b := range blocks {
		w.inflight.AscendGreaterOrEqual(&record{seq: b.Left}, func(rec *record) bool {
			if rec.seq >= b.Right {
				return false
			}
			if !rec.confirmed && b.Covers(rec.seq, rec.end()) {
				rec.confirmed = true
				w.stats.SACKed++
			}
			return true
		})
	}
}

func (w *Window) onDuplicateAck(now time.Time) {
	w.dupAcks++
	w.stats.DupAcks++
	before := w.ctrl.State()
	fast := w.ctrl.OnDuplicateAck(w.dupAcks, w.nextSeq)
	w.observeCwnd(before, now)
	if !fast {
		return
	}
	rec, ok := w.inflight.Min()
	if !ok || rec.seq != w.base {
		return
	}
	w.log.Debug("fast retransmit", "seq", rec.seq, "dup_acks", w.dupAcks)
	w.retransmit(rec, observe.FastRetransmit, now)
	w.stats.FastRetransmits++
}

// OnTimer retransmits every unconfirmed segment whose deadline has passed.
// The RTO is backed off once per call that finds expired segments.
func (w *Window) OnTimer(now time.Time) error {
	var expired []*record
	for {
		t, ok := w.timers.peek()
		if !ok || t.deadline.After(now) {
			break
		}
		w.timers.pop()
		if rec := w.live(t); rec != nil {
			expired = append(expired, rec)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	w.stats.Timeouts++
	prev := w.est.RTO()
	w.est.Backoff()
	w.obs.Observe(observe.Event{Time: now, Kind: observe.Timeout, Seq: expired[0].seq, RTO: w.est.RTO()})
	if w.est.RTO() != prev {
		w.obs.Observe(observe.Event{Time: now, Kind: observe.RTOChanged, RTO: w.est.RTO()})
	}
	before := w.ctrl.State()
	w.ctrl.OnTimeout(w.nextSeq)
	w.observeCwnd(before, now)
	w.dupAcks = 0

	for _, rec := range expired {
		if rec.attempts >= w.maxRetx {
			return fmt.Errorf("%w: seq %d after %d attempts", ErrRetriesExhausted, rec.seq, rec.attempts)
		}
		w.retransmit(rec, observe.Retransmission, now)
		w.stats.Retransmits++
	}
	return nil
}

// live returns the record a timer still refers to, or nil if it went stale.
func (w *Window) live(t timer) *record {
	rec, ok := w.inflight.Get(&record{seq: t.seq})
	if !ok || rec.confirmed || !rec.deadline.Equal(t.deadline) {
		return nil
	}
	return rec
}

func (w *Window) retransmit(rec *record, kind observe.Kind, now time.Time) {
	rec.attempts++
	rec.retransmitted = true
	rec.sentAt = now
	rec.deadline = now.Add(w.est.RTO())
	w.timers.schedule(rec.seq, rec.deadline)
	w.transmit(rec, kind, now)
}

func (w *Window) transmit(rec *record, kind observe.Kind, now time.Time) {
	if err := w.out.Transmit(rec.seq, rec.payload); err != nil {
		// The record's timer stays armed and will retry.
		w.log.Warn("segment send failed", "seq", rec.seq, "error", err)
	}
	w.obs.Observe(observe.Event{Time: now, Kind: kind, Seq: rec.seq, Len: len(rec.payload)})
}

func (w *Window) observeCwnd(before congestion.State, now time.Time) congestion.State {
	after := w.ctrl.State()
	if after != before {
		w.obs.Observe(observe.Event{
			Time:     now,
			Kind:     observe.CwndChanged,
			Cwnd:     after.Cwnd,
			SSThresh: after.SSThresh,
			Phase:    after.Phase.String(),
		})
	}
	return after
}

// NextDeadline returns the earliest live retransmission deadline.
func (w *Window) NextDeadline() (time.Time, bool) {
	for {
		t, ok := w.timers.peek()
		if !ok {
			return time.Time{}, false
		}
		if w.live(t) != nil {
			return t.deadline, true
		}
		w.timers.pop()
	}
}

// Done reports whether every data byte has been cumulatively acknowledged.
func (w *Window) Done() bool { return w.base >= w.total }

// Base returns the lowest unacknowledged offset.
func (w *Window) Base() uint32 { return w.base }

// NextSeq returns the offset of the next new byte to send.
func (w *Window) NextSeq() uint32 { return w.nextSeq }

// Total returns the stream length.
func (w *Window) Total() uint32 { return w.total }

// InFlight returns the number of unacknowledged segments.
func (w *Window) InFlight() int { return w.inflight.Len() }

// RTO returns the current retransmission timeout.
func (w *Window) RTO() time.Duration { return w.est.RTO() }

func (w *Window) Stats() Stats { return w.stats }
