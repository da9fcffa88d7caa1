package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
	"github.com/TeoSlayer/sackudp/pkg/rtt"
	"github.com/TeoSlayer/sackudp/pkg/sender"
)

// idleWait bounds the loop's sleep when no retransmission timer is armed.
const idleWait = time.Second

// SendResult summarizes a finished send.
type SendResult struct {
	Peer    string
	Bytes   int
	Elapsed time.Duration
	Window  sender.Stats
	Socket  StatsSnapshot
}

// Serve waits for one transfer request and sends data to the requester.
// Streams longer than sender.MaxStreamLen fail with ErrStreamTooLarge.
// The session is closed when Serve returns.
func (s *Session) Serve(ctx context.Context, data []byte) (SendResult, error) {
	if err := s.begin(); err != nil {
		return SendResult{}, err
	}
	defer s.finish()

	if err := sender.CheckLength(len(data)); err != nil {
		return SendResult{}, err
	}
	peer, err := s.awaitRequest(ctx)
	if err != nil {
		return SendResult{}, err
	}
	s.peer = peer
	s.log = s.log.With("side", "sender", "peer", peer.String())
	s.log.Info("transfer requested", "bytes", len(data))

	ctrl, err := s.cfg.controller()
	if err != nil {
		return SendResult{}, err
	}
	est := rtt.New(s.cfg.rttConfig())
	w := sender.New(data, sender.Config{
		Controller:     ctrl,
		Estimator:      est,
		Output:         s,
		Observer:       s.obs,
		Logger:         s.log,
		MaxRetransmits: s.cfg.maxRetransmits(),
	})

	start := time.Now()
	err = s.sendLoop(ctx, w)
	if err == nil {
		err = s.finishStream(ctx, w.Total(), est)
	}
	res := SendResult{
		Peer:    peer.String(),
		Bytes:   len(data),
		Elapsed: time.Since(start),
		Window:  w.Stats(),
		Socket:  s.stats.Snapshot(),
	}
	if err != nil {
		s.log.Warn("transfer failed", "acked", w.Base(), "error", err)
		return res, err
	}
	s.obs.Observe(observe.Event{Time: time.Now(), Kind: observe.Completed, Seq: w.Total(), Elapsed: res.Elapsed})
	s.log.Info("transfer complete",
		"bytes", res.Bytes,
		"elapsed", res.Elapsed,
		"mbps", mbps(res.Bytes, res.Elapsed),
		"segments", res.Window.SegmentsSent,
		"retransmits", res.Window.Retransmits,
		"fast_retransmits", res.Window.FastRetransmits,
		"timeouts", res.Window.Timeouts,
		"rto", est.RTO())
	return res, nil
}

// awaitRequest blocks until a request datagram arrives and returns its source.
func (s *Session) awaitRequest(ctx context.Context) (net.Addr, error) {
	if t := s.cfg.AcceptTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	s.log.Info("waiting for transfer request")
	for {
		d, err := s.next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && s.cfg.AcceptTimeout > 0 {
				return nil, ErrAcceptTimeout
			}
			return nil, err
		}
		ok := protocol.IsRequest(d.bytes())
		from := d.from
		d.release()
		if ok {
			return from, nil
		}
		s.stats.Malformed.Inc()
	}
}

// sendLoop runs the cooperative loop until every data byte is acknowledged.
func (s *Session) sendLoop(ctx context.Context, w *sender.Window) error {
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	w.Fill(time.Now())
	for !w.Done() {
		wait := idleWait
		if dl, ok := w.NextDeadline(); ok {
			wait = time.Until(dl)
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return errors.Wrap(net.ErrClosed, "sending")
		case d := <-s.inbound:
			for ok := true; ok; d, ok = s.poll() {
				if ack, valid := s.decodeAck(d); valid {
					w.OnAck(ack, time.Now())
				}
			}
		case <-timer.C:
		}

		now := time.Now()
		if err := w.OnTimer(now); err != nil {
			return err
		}
		w.Fill(now)
	}
	return nil
}

// decodeAck parses and releases d. Malformed and foreign datagrams are dropped.
func (s *Session) decodeAck(d datagram) (protocol.Ack, bool) {
	defer d.release()
	if !s.fromPeer(d) || protocol.IsRequest(d.bytes()) {
		return protocol.Ack{}, false
	}
	ack, err := protocol.DecodeAck(d.bytes())
	if err != nil {
		s.stats.Malformed.Inc()
		return protocol.Ack{}, false
	}
	return ack, true
}

// finishStream sends the EOF marker according to the configured policy.
func (s *Session) finishStream(ctx context.Context, total uint32, est *rtt.Estimator) error {
	switch s.cfg.EOFPolicy {
	case AwaitAck:
		return s.eofAwaitAck(ctx, total, est)
	default:
		return s.eofBurst(ctx, total)
	}
}

func (s *Session) sendEOF(total uint32) {
	if err := s.Transmit(total, protocol.EOFMarker); err != nil {
		s.log.Warn("EOF send failed", "error", err)
		return
	}
	s.stats.EOFSent.Inc()
}

// eofBurst sends the marker a fixed number of times without waiting for
// an ack.
func (s *Session) eofBurst(ctx context.Context, total uint32) error {
	n := s.cfg.eofRepeats()
	for i := 0; i < n; i++ {
		s.sendEOF(total)
		if i == n-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.eofInterval()):
		}
		s.drain()
	}
	return nil
}

// eofAwaitAck retransmits the marker on the RTO until the receiver acks it.
func (s *Session) eofAwaitAck(ctx context.Context, total uint32, est *rtt.Estimator) error {
	want := total + uint32(len(protocol.EOFMarker))
	budget := s.cfg.maxRetransmits()
	timer := time.NewTimer(est.RTO())
	defer timer.Stop()

	s.sendEOF(total)
	for attempts := 0; ; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return errors.Wrap(net.ErrClosed, "awaiting EOF ack")
		case d := <-s.inbound:
			for ok := true; ok; d, ok = s.poll() {
				if ack, valid := s.decodeAck(d); valid && ack.Cumulative >= want {
					return nil
				}
			}
		case <-timer.C:
			if attempts >= budget {
				return errors.Wrapf(ErrRetriesExhausted, "EOF unacknowledged after %d attempts", attempts)
			}
			attempts++
			est.Backoff()
			s.obs.Observe(observe.Event{Time: time.Now(), Kind: observe.Retransmission, Seq: total, Len: len(protocol.EOFMarker)})
			s.sendEOF(total)
			timer.Reset(est.RTO())
		}
	}
}

// drain discards queued datagrams.
func (s *Session) drain() {
	for {
		d, ok := s.poll()
		if !ok {
			return
		}
		d.release()
	}
}

func mbps(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) * 8 / d.Seconds() / 1e6
}
