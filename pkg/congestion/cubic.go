package congestion

import (
	"math"
	"time"
)

// CUBIC constants (RFC 8312), in segment units.
const (
	cubicC    = 0.4
	cubicBeta = 0.7
)

// cubicAlpha makes the TCP-friendly estimate grow like Reno with the same beta.
var cubicAlpha = 3 * (1 - cubicBeta) / (1 + cubicBeta)

// Cubic grows the window along W(t) = C(t-K)^3 + Wmax after each loss,
// never slower than the TCP-friendly estimate.
type Cubic struct {
	mss float64

	wMax       float64 // window before the last reduction
	wLastMax   float64
	epochStart time.Time
	origin     float64
	k          float64
	wEst       float64
}

func newCubic(mss uint32) *Cubic {
	return &Cubic{mss: float64(mss)}
}

// Name returns the algorithm name used in config and logs.
func (c *Cubic) Name() string { return string(AlgorithmCubic) }

// WMax returns the window (in segments) recorded at the last reduction.
func (c *Cubic) WMax() float64 { return c.wMax }

// K returns the time, in seconds, to regain WMax in the current epoch.
func (c *Cubic) K() float64 { return c.k }

// Grow moves the window toward the cubic target for the current epoch,
// never below what Reno would reach.
func (c *Cubic) Grow(cwnd, bytesAcked uint32, rtt time.Duration, now time.Time) uint32 {
	w := float64(cwnd) / c.mss
	acked := float64(bytesAcked) / c.mss
	if c.epochStart.IsZero() {
		c.epochStart = now
		if w < c.wMax {
			c.k = math.Cbrt((c.wMax - w) / cubicC)
			c.origin = c.wMax
		} else {
			c.k = 0
			c.origin = w
		}
		c.wEst = w
	}

	t := now.Sub(c.epochStart).Seconds() + rtt.Seconds()
	target := c.origin + cubicC*math.Pow(t-c.k, 3)

	c.wEst += cubicAlpha * acked / w
	if c.wEst > target {
		target = c.wEst
	}

	var next float64
	if target > w {
		next = w + (target-w)/w*acked
	} else {
		next = w + 0.01*acked/w
	}
	grown := uint32(next * c.mss)
	if grown <= cwnd {
		grown = cwnd + 1
	}
	return grown
}

// Reduce records the loss and scales the window by beta.
func (c *Cubic) Reduce(cwnd uint32, _ time.Time) uint32 {
	c.recordLoss(cwnd)
	return uint32(float64(cwnd)*cubicBeta + 0.5)
}

// OnTimeout records the loss and restarts the epoch.
func (c *Cubic) OnTimeout(cwnd uint32) {
	c.recordLoss(cwnd)
}

func (c *Cubic) recordLoss(cwnd uint32) {
	w := float64(cwnd) / c.mss
	c.epochStart = time.Time{}
	// Fast convergence: release bandwidth when the peak keeps shrinking.
	if w < c.wLastMax {
		c.wLastMax = w
		c.wMax = w * (1 + cubicBeta) / 2
	} else {
		c.wLastMax = w
		c.wMax = w
	}
}
