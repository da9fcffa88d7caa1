// Package congestion decides how many bytes a sender may keep in flight.
//
// Machine runs the SlowStart / CongestionAvoidance / FastRecovery state
// machine and delegates avoidance growth and loss reduction to a Strategy
// (Reno for AIMD, Cubic). Fixed keeps a constant window.
package congestion

import (
	"fmt"
	"strings"
	"time"
)

// Controller is the congestion interface consumed by the sender.
type Controller interface {
	// OnAck reports a cumulative ack that advanced the window base by
	// bytesAcked. rtt is zero when no clean sample was available.
	OnAck(ack, bytesAcked uint32, rtt time.Duration)
	// OnDuplicateAck reports the count-th duplicate of the current
	// cumulative ack. It returns true exactly once per loss episode,
	// when the sender should fast-retransmit the base segment.
	OnDuplicateAck(count int, highestSent uint32) bool
	// OnTimeout reports a retransmission timeout.
	OnTimeout(highestSent uint32)
	// Window returns the congestion window in bytes.
	Window() uint32
	State() State
}

// DupAckThreshold is the duplicate count that triggers fast retransmit.
const DupAckThreshold = 3

// Phase is the state of the congestion state machine.
type Phase uint8

const (
	SlowStart Phase = iota
	CongestionAvoidance
	FastRecovery
)

func (p Phase) String() string {
	switch p {
	case SlowStart:
		return "SLOW_START"
	case CongestionAvoidance:
		return "CONGESTION_AVOIDANCE"
	case FastRecovery:
		return "FAST_RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// State is a snapshot of a controller.
type State struct {
	Cwnd     uint32
	SSThresh uint32
	Phase    Phase
}

// Clock abstracts time for the strategies that depend on it.
type Clock interface {
	Now() time.Time
}

// DefaultClock is a Clock that returns time.Now.
type DefaultClock struct{}

func (DefaultClock) Now() time.Time { return time.Now() }

// Algorithm names a controller implementation.
type Algorithm string

const (
	AlgorithmFixed Algorithm = "fixed"
	AlgorithmAIMD  Algorithm = "aimd"
	AlgorithmCubic Algorithm = "cubic"
)

// ParseAlgorithm accepts the algorithm names plus "reno" as an alias for aimd.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return AlgorithmFixed, nil
	case "aimd", "reno":
		return AlgorithmAIMD, nil
	case "cubic", "":
		return AlgorithmCubic, nil
	}
	return "", fmt.Errorf("unknown congestion algorithm %q", s)
}

// New builds the controller for algo.
func New(algo Algorithm, cfg Config) (Controller, error) {
	switch algo {
	case AlgorithmFixed:
		return NewFixed(cfg.maxWindow()), nil
	case AlgorithmAIMD:
		return NewReno(cfg), nil
	case AlgorithmCubic:
		return NewCubic(cfg), nil
	}
	return nil, fmt.Errorf("unknown congestion algorithm %q", algo)
}
