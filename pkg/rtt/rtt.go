// Package rtt implements round-trip time estimation and retransmission
// timeout computation (Jacobson/Karels, RFC 6298).
package rtt

import "time"

// Defaults tuned for a loopback or LAN path.
const (
	DefaultInitialRTO    = 150 * time.Millisecond
	DefaultMinRTO        = 40 * time.Millisecond
	DefaultMaxRTO        = 3 * time.Second
	DefaultBackoffFactor = 2.0
)

// Config holds the estimator bounds. Zero fields take their defaults.
type Config struct {
	InitialRTO    time.Duration
	MinRTO        time.Duration
	MaxRTO        time.Duration
	BackoffFactor float64
}

func (c Config) initialRTO() time.Duration {
	if c.InitialRTO > 0 {
		return c.InitialRTO
	}
	return DefaultInitialRTO
}

func (c Config) minRTO() time.Duration {
	if c.MinRTO > 0 {
		return c.MinRTO
	}
	return DefaultMinRTO
}

func (c Config) maxRTO() time.Duration {
	if c.MaxRTO > 0 {
		return c.MaxRTO
	}
	return DefaultMaxRTO
}

func (c Config) backoffFactor() float64 {
	if c.BackoffFactor > 1 {
		return c.BackoffFactor
	}
	return DefaultBackoffFactor
}

// Model is a snapshot of the estimator state.
type Model struct {
	SRTT   time.Duration
	RTTVAR time.Duration
	RTO    time.Duration
}

// Estimator tracks SRTT/RTTVAR and derives the RTO.
// Callers must only feed samples from segments that were never
// retransmitted (Karn's algorithm); the estimator cannot tell.
type Estimator struct {
	min, max time.Duration
	factor   float64

	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	samples uint64
}

// New creates an estimator whose RTO starts at the configured initial value.
func New(cfg Config) *Estimator {
	e := &Estimator{
		min:    cfg.minRTO(),
		max:    cfg.maxRTO(),
		factor: cfg.backoffFactor(),
	}
	if e.max < e.min {
		e.max = e.min
	}
	e.rto = e.clamp(cfg.initialRTO())
	return e
}

// OnSample folds a measured RTT into the model. Non-positive samples are ignored.
func (e *Estimator) OnSample(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	if e.samples == 0 {
		e.srtt = rtt
		e.rttvar = rtt / 2
	} else {
		diff := e.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = (3*e.rttvar + diff) / 4
		e.srtt = (7*e.srtt + rtt) / 8
	}
	e.samples++
	e.rto = e.clamp(e.srtt + 4*e.rttvar)
}

// Backoff multiplies the RTO by the backoff factor, up to the maximum.
func (e *Estimator) Backoff() {
	e.rto = e.clamp(time.Duration(float64(e.rto) * e.factor))
}

// RTO returns the current retransmission timeout.
func (e *Estimator) RTO() time.Duration { return e.rto }

// SRTT returns the smoothed RTT, zero before the first sample.
func (e *Estimator) SRTT() time.Duration { return e.srtt }

// Samples returns how many RTT samples have been folded in.
func (e *Estimator) Samples() uint64 { return e.samples }

// Model returns a snapshot of SRTT, RTTVAR and RTO.
func (e *Estimator) Model() Model {
	return Model{SRTT: e.srtt, RTTVAR: e.rttvar, RTO: e.rto}
}

func (e *Estimator) clamp(d time.Duration) time.Duration {
	if d < e.min {
		return e.min
	}
	if d > e.max {
		return e.max
	}
	return d
}
