package transport

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/TeoSlayer/sackudp/pkg/protocol"
)

var errNoResponse = errors.New("no response")

// handshake sends the request byte until the server answers with its first
// segment, up to the configured number of attempts.
func (s *Session) handshake(ctx context.Context) (datagram, error) {
	attempts := s.cfg.handshakeAttempts()
	interval := s.cfg.handshakeInterval()
	request := []byte{protocol.RequestByte}

	var first datagram
	attempt := 0
	op := func() error {
		attempt++
		s.log.Debug("sending transfer request", "attempt", attempt)
		if err := s.write(request); err != nil {
			return err
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-s.done:
				return backoff.Permanent(errNoResponse)
			case d := <-s.inbound:
				if !s.fromPeer(d) || len(d.bytes()) < protocol.HeaderSize {
					d.release()
					continue
				}
				first = d
				return nil
			case <-timer.C:
				return errNoResponse
			}
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		s.log.Info("server not responding, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return datagram{}, ctx.Err()
		}
		return datagram{}, pkgerrors.Wrapf(ErrHandshakeFailed, "no response from %s after %d attempts", s.peer, attempt)
	}
	return first, nil
}
