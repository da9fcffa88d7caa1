// Package transport runs one reliable transfer over a UDP socket.
//
// A Session owns a net.PacketConn for a single transfer. One goroutine
// reads the socket and feeds datagrams to the protocol loop over a channel;
// the loop owns all protocol state and blocks on that channel with a timer
// set to the earliest retransmission deadline.
package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/TeoSlayer/sackudp/internal/pool"
	"github.com/TeoSlayer/sackudp/internal/sockopt"
	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
)

// datagram is one read from the socket. buf is pooled; release it once the
// contents have been consumed or copied.
type datagram struct {
	buf  *[]byte
	n    int
	from net.Addr
}

func (d datagram) bytes() []byte { return (*d.buf)[:d.n] }

func (d datagram) release() { pool.PutDatagram(d.buf) }

// Session is a single transfer endpoint.
type Session struct {
	cfg  Config
	conn net.PacketConn
	log  *slog.Logger
	obs  observe.Observer

	peer    net.Addr
	inbound chan datagram

	stats Stats

	used      bool
	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

// NewSession wraps conn. The session takes ownership and closes conn when
// the transfer ends.
func NewSession(conn net.PacketConn, cfg Config) *Session {
	s := &Session{
		cfg:      cfg,
		conn:     conn,
		log:      cfg.logger().With("local", conn.LocalAddr().String()),
		obs:      cfg.observer(),
		inbound:  make(chan datagram, inboundQueueLen),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	if cfg.TOS != 0 {
		if err := sockopt.SetTOS(conn, cfg.TOS); err != nil {
			s.log.Warn("failed to set TOS", "tos", cfg.TOS, "error", err)
		}
	}
	return s
}

// Listen opens a UDP socket on addr and returns a session bound to it.
func Listen(addr string, cfg Config) (*Session, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	return NewSession(conn, cfg), nil
}

// Addr returns the local socket address.
func (s *Session) Addr() net.Addr { return s.conn.LocalAddr() }

// Stats returns the socket counters.
func (s *Session) Stats() StatsSnapshot { return s.stats.Snapshot() }

// Close stops the reader and releases the socket. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// begin marks the session used and starts the reader goroutine.
func (s *Session) begin() error {
	if s.used {
		return ErrSessionUsed
	}
	s.used = true
	go s.readLoop()
	return nil
}

// finish closes the session and waits for the reader goroutine to exit.
func (s *Session) finish() {
	s.Close()
	<-s.readDone
	s.drain()
}

func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		bp := pool.GetDatagram()
		n, from, err := s.conn.ReadFrom(*bp)
		if err != nil {
			pool.PutDatagram(bp)
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("read failed", "error", err)
			continue
		}
		s.stats.DatagramsRecv.Inc()
		s.stats.BytesRecv.Add(uint64(n))
		select {
		case s.inbound <- datagram{buf: bp, n: n, from: from}:
		case <-s.done:
			pool.PutDatagram(bp)
			return
		}
	}
}

// next returns the next datagram, or an error when ctx ends or the
// session closes.
func (s *Session) next(ctx context.Context) (datagram, error) {
	select {
	case d := <-s.inbound:
		return d, nil
	case <-ctx.Done():
		return datagram{}, ctx.Err()
	case <-s.done:
		return datagram{}, net.ErrClosed
	}
}

// poll returns a queued datagram without blocking.
func (s *Session) poll() (datagram, bool) {
	select {
	case d := <-s.inbound:
		return d, true
	default:
		return datagram{}, false
	}
}

// fromPeer reports whether d came from the session peer.
func (s *Session) fromPeer(d datagram) bool {
	if sameAddr(d.from, s.peer) {
		return true
	}
	s.stats.Foreign.Inc()
	s.log.Debug("dropping datagram from unexpected peer", "from", d.from)
	return false
}

func (s *Session) write(b []byte) error {
	if _, err := s.conn.WriteTo(b, s.peer); err != nil {
		s.stats.SendErrors.Inc()
		return errors.Wrapf(err, "write to %s", s.peer)
	}
	s.stats.DatagramsSent.Inc()
	s.stats.BytesSent.Add(uint64(len(b)))
	return nil
}

// Transmit encodes and sends a data segment to the peer.
func (s *Session) Transmit(seq uint32, payload []byte) error {
	b, err := protocol.EncodeData(seq, payload)
	if err != nil {
		return err
	}
	return s.write(b)
}

func (s *Session) sendAck(a protocol.Ack) {
	if err := s.write(protocol.EncodeAck(a.Cumulative, a.SACK)); err != nil {
		s.log.Warn("ack send failed", "error", err)
		return
	}
	s.stats.AcksSent.Inc()
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}
	return a.String() == b.String()
}
