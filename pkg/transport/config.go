package transport

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TeoSlayer/sackudp/pkg/congestion"
	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
	"github.com/TeoSlayer/sackudp/pkg/rtt"
	"github.com/TeoSlayer/sackudp/pkg/sender"
)

// EOFPolicy selects how the sender finishes a transfer.
type EOFPolicy uint8

const (
	// BestEffort sends the EOF marker a fixed number of times and returns.
	BestEffort EOFPolicy = iota
	// AwaitAck retransmits the EOF marker until the receiver acknowledges it.
	AwaitAck
)

func (p EOFPolicy) String() string {
	switch p {
	case BestEffort:
		return "best-effort"
	case AwaitAck:
		return "await-ack"
	default:
		return "unknown"
	}
}

// ParseEOFPolicy accepts "best-effort" or "await-ack".
func ParseEOFPolicy(s string) (EOFPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best-effort", "besteffort", "burst":
		return BestEffort, nil
	case "await-ack", "awaitack", "ack":
		return AwaitAck, nil
	}
	return 0, fmt.Errorf("unknown eof policy %q", s)
}

// Default tuning constants (used when Config fields are zero).
const (
	DefaultWindow            = congestion.DefaultMaxWindow
	DefaultEOFRepeats        = 5
	DefaultEOFInterval       = 40 * time.Millisecond
	DefaultHandshakeAttempts = 5
	DefaultHandshakeInterval = 2 * time.Second
	DefaultIdleTimeout       = time.Second
	DefaultMaxStalls         = 8
	DefaultLinger            = 500 * time.Millisecond
	inboundQueueLen          = 256
)

// Config holds every tunable of a session. The zero value is usable.
type Config struct {
	Algorithm     congestion.Algorithm // default cubic
	Window        uint32               // congestion ceiling, or the fixed window, in bytes
	InitialWindow uint32               // initial cwnd in bytes (default one MSS)

	InitialRTO     time.Duration
	MinRTO         time.Duration
	MaxRTO         time.Duration
	BackoffFactor  float64
	MaxRetransmits int // per-segment retry budget

	EOFPolicy   EOFPolicy
	EOFRepeats  int           // BestEffort burst size
	EOFInterval time.Duration // BestEffort burst spacing

	HandshakeAttempts int
	HandshakeInterval time.Duration
	AcceptTimeout     time.Duration // sender wait for a request; 0 waits forever

	IdleTimeout time.Duration // receiver wait before re-acking
	MaxStalls   int           // consecutive idle timeouts before giving up
	Linger      time.Duration // AwaitAck receiver re-ack period after completion

	TOS int // IP TOS / traffic class for outgoing datagrams, 0 leaves it unset

	Observer observe.Observer
	Logger   *slog.Logger
}

func (c *Config) algorithm() congestion.Algorithm {
	if c.Algorithm != "" {
		return c.Algorithm
	}
	return congestion.AlgorithmCubic
}

func (c *Config) window() uint32 {
	if c.Window >= protocol.MSS {
		return c.Window
	}
	return DefaultWindow
}

func (c *Config) eofRepeats() int {
	if c.EOFRepeats > 0 {
		return c.EOFRepeats
	}
	return DefaultEOFRepeats
}

func (c *Config) eofInterval() time.Duration {
	if c.EOFInterval > 0 {
		return c.EOFInterval
	}
	return DefaultEOFInterval
}

func (c *Config) handshakeAttempts() int {
	if c.HandshakeAttempts > 0 {
		return c.HandshakeAttempts
	}
	return DefaultHandshakeAttempts
}

func (c *Config) handshakeInterval() time.Duration {
	if c.HandshakeInterval > 0 {
		return c.HandshakeInterval
	}
	return DefaultHandshakeInterval
}

func (c *Config) idleTimeout() time.Duration {
	if c.IdleTimeout > 0 {
		return c.IdleTimeout
	}
	return DefaultIdleTimeout
}

func (c *Config) maxStalls() int {
	if c.MaxStalls > 0 {
		return c.MaxStalls
	}
	return DefaultMaxStalls
}

func (c *Config) linger() time.Duration {
	if c.Linger > 0 {
		return c.Linger
	}
	return DefaultLinger
}

func (c *Config) maxRetransmits() int {
	if c.MaxRetransmits > 0 {
		return c.MaxRetransmits
	}
	return sender.DefaultMaxRetransmits
}

func (c *Config) observer() observe.Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return observe.Nop
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) rttConfig() rtt.Config {
	return rtt.Config{
		InitialRTO:    c.InitialRTO,
		MinRTO:        c.MinRTO,
		MaxRTO:        c.MaxRTO,
		BackoffFactor: c.BackoffFactor,
	}
}

func (c *Config) controller() (congestion.Controller, error) {
	return congestion.New(c.algorithm(), congestion.Config{
		MSS:           protocol.MSS,
		InitialWindow: c.InitialWindow,
		MaxWindow:     c.window(),
	})
}
