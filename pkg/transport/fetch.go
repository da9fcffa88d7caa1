package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
	"github.com/TeoSlayer/sackudp/pkg/receiver"
)

// FetchResult summarizes a finished receive.
type FetchResult struct {
	Data      []byte
	Elapsed   time.Duration
	Assembler receiver.Stats
	Socket    StatsSnapshot
}

// Fetch requests a transfer from server and returns the assembled stream.
// A transfer that stops making progress fails with a *StalledError holding
// the bytes received so far. The session is closed when Fetch returns.
func (s *Session) Fetch(ctx context.Context, server net.Addr) (FetchResult, error) {
	if err := s.begin(); err != nil {
		return FetchResult{}, err
	}
	defer s.finish()

	s.peer = server
	s.log = s.log.With("side", "receiver", "peer", server.String())
	start := time.Now()

	first, err := s.handshake(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	s.log.Info("server responded, receiving data")

	asm := receiver.New()
	s.onSegment(asm, first)

	res := FetchResult{}
	err = s.receiveLoop(ctx, asm)
	res.Elapsed = time.Since(start)
	res.Assembler = asm.Stats()
	if err != nil {
		var st *StalledError
		if errors.As(err, &st) {
			s.obs.Observe(observe.Event{Time: time.Now(), Kind: observe.Stalled, Seq: asm.NextExpected(), Elapsed: res.Elapsed})
			s.log.Warn("transfer stalled", "received", len(st.Partial), "buffered", asm.Buffered())
		}
		res.Socket = s.stats.Snapshot()
		return res, err
	}
	res.Data = asm.Bytes()

	if s.cfg.EOFPolicy == AwaitAck {
		s.linger(ctx, asm)
	}
	res.Socket = s.stats.Snapshot()
	s.obs.Observe(observe.Event{Time: time.Now(), Kind: observe.Completed, Seq: asm.NextExpected(), Elapsed: res.Elapsed})
	s.log.Info("transfer complete",
		"bytes", len(res.Data),
		"elapsed", res.Elapsed,
		"mbps", mbps(len(res.Data), res.Elapsed),
		"segments", res.Assembler.Segments,
		"out_of_order", res.Assembler.OutOfOrder,
		"duplicates", res.Assembler.Duplicates)
	return res, nil
}

// receiveLoop acks every segment until the stream is complete. Each idle
// timeout re-sends the latest ack; too many in a row is a stall. Only valid
// segments from the server count as activity.
func (s *Session) receiveLoop(ctx context.Context, asm *receiver.Assembler) error {
	idle := s.cfg.idleTimeout()
	timer := time.NewTimer(idle)
	defer timer.Stop()

	stalls := 0
	for !asm.Complete() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return net.ErrClosed
		case d := <-s.inbound:
			if !s.onBatch(asm, d) {
				continue
			}
			stalls = 0
		case <-timer.C:
			stalls++
			s.log.Debug("receive timeout", "count", stalls, "next_expected", asm.NextExpected())
			if stalls >= s.cfg.maxStalls() {
				return &StalledError{
					Timeouts: stalls,
					Partial:  append([]byte(nil), asm.Bytes()...),
				}
			}
			s.sendAck(asm.Ack())
		}
		timer.Reset(idle)
	}
	return nil
}

// onBatch handles d and every other queued datagram. It reports whether
// any of them was a valid segment.
func (s *Session) onBatch(asm *receiver.Assembler, d datagram) bool {
	valid := false
	for ok := true; ok; d, ok = s.poll() {
		if s.onSegment(asm, d) {
			valid = true
		}
	}
	return valid
}

// onSegment decodes d, feeds the assembler and acks. It reports whether
// d was a valid segment from the server.
func (s *Session) onSegment(asm *receiver.Assembler, d datagram) bool {
	defer d.release()
	if !s.fromPeer(d) {
		return false
	}
	b := d.bytes()
	if len(b) > protocol.MaxDatagram {
		s.stats.Malformed.Inc()
		return false
	}
	seq, payload, err := protocol.DecodeData(b)
	if err != nil {
		s.stats.Malformed.Inc()
		return false
	}
	s.sendAck(asm.OnSegment(seq, payload))
	return true
}

// linger keeps answering retransmitted EOF markers until the sender has
// been quiet for the linger period.
func (s *Session) linger(ctx context.Context, asm *receiver.Assembler) {
	quiet := s.cfg.linger()
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-timer.C:
			return
		case d := <-s.inbound:
			if s.onBatch(asm, d) {
				timer.Reset(quiet)
			}
		}
	}
}
