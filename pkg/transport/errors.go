package transport

import (
	"errors"
	"fmt"

	"github.com/TeoSlayer/sackudp/pkg/sender"
)

// Sentinel errors returned by sessions.
var (
	ErrHandshakeFailed  = errors.New("handshake failed")
	ErrAcceptTimeout    = errors.New("no transfer request received")
	ErrRetriesExhausted = sender.ErrRetriesExhausted
	ErrStreamTooLarge   = sender.ErrStreamTooLarge
	ErrSessionUsed      = errors.New("session already used")
)

// StalledError reports a transfer that stopped making progress. Partial
// holds the in-order prefix received before the stall.
type StalledError struct {
	Timeouts int
	Partial  []byte
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("transfer stalled after %d consecutive timeouts (%d bytes received)", e.Timeouts, len(e.Partial))
}
