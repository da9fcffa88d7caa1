package congestion

import "time"

// Reno grows additively by about one MSS per window and halves on loss.
type Reno struct {
	mss uint32
}

// Name returns the algorithm name used in config and logs.
func (r *Reno) Name() string { return string(AlgorithmAIMD) }

// Grow adds one MSS per window of acked bytes.
func (r *Reno) Grow(cwnd, bytesAcked uint32, _ time.Duration, _ time.Time) uint32 {
	inc := uint64(r.mss) * uint64(bytesAcked) / uint64(cwnd)
	if inc == 0 {
		inc = 1
	}
	return cwnd + uint32(inc)
}

// Reduce halves the window.
func (r *Reno) Reduce(cwnd uint32, _ time.Time) uint32 { return cwnd / 2 }

// OnTimeout is a no-op; Reno keeps no state across losses.
func (r *Reno) OnTimeout(uint32) {}
