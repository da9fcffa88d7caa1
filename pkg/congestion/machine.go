package congestion

import "time"

// Default window parameters (bytes).
const (
	DefaultMSS       = 1180
	DefaultMaxWindow = 512 * DefaultMSS
)

// Config parameterizes a Machine. Zero fields take their defaults.
type Config struct {
	MSS           uint32
	InitialWindow uint32 // defaults to one MSS
	MaxWindow     uint32 // ceiling; also the initial ssthresh
	Clock         Clock
}

func (c Config) mss() uint32 {
	if c.MSS > 0 {
		return c.MSS
	}
	return DefaultMSS
}

func (c Config) maxWindow() uint32 {
	if c.MaxWindow >= c.mss() {
		return c.MaxWindow
	}
	if c.MaxWindow > 0 {
		return c.mss()
	}
	return DefaultMaxWindow
}

func (c Config) initialWindow() uint32 {
	w := c.InitialWindow
	if w < c.mss() {
		w = c.mss()
	}
	if w > c.maxWindow() {
		w = c.maxWindow()
	}
	return w
}

func (c Config) clock() Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return DefaultClock{}
}

// Strategy supplies the avoidance growth and loss reduction of a Machine.
type Strategy interface {
	Name() string
	// Grow returns the window after bytesAcked were acked in congestion avoidance.
	Grow(cwnd, bytesAcked uint32, rtt time.Duration, now time.Time) uint32
	// Reduce returns the window to fall back to when a loss episode starts.
	Reduce(cwnd uint32, now time.Time) uint32
	// OnTimeout resets any growth epoch after a retransmission timeout.
	OnTimeout(cwnd uint32)
}

// Machine is the shared congestion state machine.
type Machine struct {
	strategy Strategy
	clock    Clock
	mss      uint32
	ceiling  uint32

	cwnd          uint32
	ssthresh      uint32
	phase         Phase
	recoveryPoint uint32
	// afterTimeout blocks new fast-recovery episodes until the cumulative
	// ack reaches the highest offset sent before the timeout (RFC 6582).
	afterTimeout bool
}

var _ Controller = &Machine{}

// NewMachine creates a Machine driven by s.
func NewMachine(cfg Config, s Strategy) *Machine {
	return &Machine{
		strategy: s,
		clock:    cfg.clock(),
		mss:      cfg.mss(),
		ceiling:  cfg.maxWindow(),
		cwnd:     cfg.initialWindow(),
		ssthresh: cfg.maxWindow(),
		phase:    SlowStart,
	}
}

// NewReno creates an AIMD controller.
func NewReno(cfg Config) *Machine {
	return NewMachine(cfg, &Reno{mss: cfg.mss()})
}

// NewCubic creates a CUBIC controller.
func NewCubic(cfg Config) *Machine {
	return NewMachine(cfg, newCubic(cfg.mss()))
}

// Strategy returns the growth and reduction strategy driving m.
func (m *Machine) Strategy() Strategy { return m.strategy }

// OnAck grows or deflates the window for an ack that advanced the base.
func (m *Machine) OnAck(ack, bytesAcked uint32, rtt time.Duration) {
	if bytesAcked == 0 {
		return
	}
	if m.afterTimeout && int32(ack-m.recoveryPoint) >= 0 {
		m.afterTimeout = false
	}
	switch m.phase {
	case FastRecovery:
		if int32(ack-m.recoveryPoint) >= 0 {
			m.cwnd = m.ssthresh
			m.phase = CongestionAvoidance
			break
		}
		// Partial ack: deflate by the newly acked data, re-inflate by one
		// segment for the retransmission it triggers (RFC 6582).
		if bytesAcked < m.cwnd {
			m.cwnd -= bytesAcked
		} else {
			m.cwnd = 0
		}
		if bytesAcked >= m.mss {
			m.cwnd += m.mss
		}
	case SlowStart:
		m.cwnd += bytesAcked
		if m.cwnd >= m.ssthresh {
			m.cwnd = m.ssthresh
			m.phase = CongestionAvoidance
		}
	case CongestionAvoidance:
		m.cwnd = m.strategy.Grow(m.cwnd, bytesAcked, rtt, m.clock.Now())
	}
	m.clamp()
}

// OnDuplicateAck starts a fast-recovery episode on the third duplicate, or
// inflates the window for each further duplicate inside one.
func (m *Machine) OnDuplicateAck(count int, highestSent uint32) bool {
	if m.phase == FastRecovery {
		if count > DupAckThreshold {
			m.cwnd += m.mss
			m.clamp()
		}
		return false
	}
	if count != DupAckThreshold || m.afterTimeout {
		return false
	}
	m.ssthresh = m.floor(m.strategy.Reduce(m.cwnd, m.clock.Now()))
	m.cwnd = m.ssthresh
	m.phase = FastRecovery
	m.recoveryPoint = highestSent
	m.clamp()
	return true
}

// OnTimeout halves ssthresh and restarts slow start from one segment.
// Duplicates of acks below highestSent no longer count as a new loss.
func (m *Machine) OnTimeout(highestSent uint32) {
	m.strategy.OnTimeout(m.cwnd)
	m.ssthresh = m.floor(m.cwnd / 2)
	m.cwnd = m.mss
	m.phase = SlowStart
	m.recoveryPoint = highestSent
	m.afterTimeout = true
}

// Window returns the congestion window in bytes.
func (m *Machine) Window() uint32 { return m.cwnd }

// State returns a snapshot of the window, threshold and phase.
func (m *Machine) State() State {
	return State{Cwnd: m.cwnd, SSThresh: m.ssthresh, Phase: m.phase}
}

// floor bounds a post-loss threshold to [2*MSS, ceiling].
func (m *Machine) floor(w uint32) uint32 {
	if w < 2*m.mss {
		w = 2 * m.mss
	}
	if w > m.ceiling {
		w = m.ceiling
	}
	return w
}

func (m *Machine) clamp() {
	if m.cwnd < m.mss {
		m.cwnd = m.mss
	}
	if m.cwnd > m.ceiling {
		m.cwnd = m.ceiling
	}
}
