package congestion

import "time"

// Fixed keeps a constant window. Loss episodes still trigger one fast
// retransmit each but never shrink the window.
type Fixed struct {
	window        uint32
	inEpisode     bool
	afterTimeout  bool
	recoveryPoint uint32
}

var _ Controller = &Fixed{}

// NewFixed creates a Fixed controller with the given window in bytes.
func NewFixed(window uint32) *Fixed {
	return &Fixed{window: window}
}

// OnAck ends a loss episode once the recovery point is acked.
func (f *Fixed) OnAck(ack, bytesAcked uint32, _ time.Duration) {
	if (f.inEpisode || f.afterTimeout) && int32(ack-f.recoveryPoint) >= 0 {
		f.inEpisode = false
		f.afterTimeout = false
	}
}

// OnDuplicateAck signals a fast retransmit on the third duplicate outside
// an episode.
func (f *Fixed) OnDuplicateAck(count int, highestSent uint32) bool {
	if f.inEpisode || f.afterTimeout || count != DupAckThreshold {
		return false
	}
	f.inEpisode = true
	f.recoveryPoint = highestSent
	return true
}

// OnTimeout ends any episode and holds off fast retransmit until the
// data outstanding at the timeout is acked.
func (f *Fixed) OnTimeout(highestSent uint32) {
	f.inEpisode = false
	f.afterTimeout = true
	f.recoveryPoint = highestSent
}

// Window returns the fixed window in bytes.
func (f *Fixed) Window() uint32 { return f.window }

// State reports the fixed window as both cwnd and ssthresh.
func (f *Fixed) State() State {
	phase := CongestionAvoidance
	if f.inEpisode {
		phase = FastRecovery
	}
	return State{Cwnd: f.window, SSThresh: f.window, Phase: phase}
}
