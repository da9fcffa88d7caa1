package congestion

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cubic", func() {
	var (
		m     *Machine
		c     *Cubic
		clock *mockClock
	)

	BeforeEach(func() {
		clock = new(mockClock)
		*clock = mockClock(time.Unix(1000, 0))
		m = NewCubic(Config{MaxWindow: 512 * mss, Clock: clock})
		c = m.Strategy().(*Cubic)
	})

	enterAvoidance := func(segments uint32) {
		m.cwnd = segments * mss
		m.ssthresh = segments * mss
		m.phase = CongestionAvoidance
	}

	It("reduces by beta and records the peak on loss", func() {
		enterAvoidance(100)
		Expect(m.OnDuplicateAck(3, 200*mss)).To(BeTrue())
		Expect(m.Window()).To(BeEquivalentTo(70 * mss))
		Expect(c.WMax()).To(BeNumerically("~", 100, 0.001))
	})

	It("applies fast convergence when the peak shrinks", func() {
		enterAvoidance(100)
		m.OnDuplicateAck(3, 200*mss)
		m.OnAck(200*mss, mss, 0)

		enterAvoidance(80)
		m.OnDuplicateAck(3, 300*mss)
		Expect(c.WMax()).To(BeNumerically("~", 80*(1+cubicBeta)/2, 0.001))
	})

	It("regrows toward the previous peak along the cubic curve", func() {
		enterAvoidance(100)
		m.OnDuplicateAck(3, 200*mss)
		m.OnAck(200*mss, mss, 0)
		Expect(m.State().Phase).To(Equal(CongestionAvoidance))

		start := m.Window()
		var ack uint32 = 200 * mss
		for i := 0; i < 400; i++ {
			clock.Advance(10 * time.Millisecond)
			ack += mss
			m.OnAck(ack, mss, 20*time.Millisecond)
		}
		Expect(c.K()).To(BeNumerically(">", 0))
		Expect(m.Window()).To(BeNumerically(">", start))
		// plateau around the previous peak after K seconds
		Expect(m.Window()).To(BeNumerically("~", 100*mss, 15*mss))
	})

	It("grows on every ack in congestion avoidance", func() {
		enterAvoidance(10)
		prev := m.Window()
		var ack uint32
		for i := 0; i < 20; i++ {
			clock.Advance(time.Millisecond)
			ack += mss
			m.OnAck(ack, mss, 5*time.Millisecond)
			Expect(m.Window()).To(BeNumerically(">", prev))
			prev = m.Window()
		}
	})

	It("resets the epoch on timeout", func() {
		enterAvoidance(50)
		m.OnAck(mss, mss, time.Millisecond)
		m.OnTimeout(100 * mss)
		Expect(m.Window()).To(BeEquivalentTo(mss))
		Expect(m.State().SSThresh).To(BeNumerically("~", 25*mss, mss/10))
		Expect(c.epochStart.IsZero()).To(BeTrue())
	})

	It("stays within the ceiling", func() {
		m = NewCubic(Config{MaxWindow: 20 * mss, Clock: clock})
		var ack uint32
		for i := 0; i < 2000; i++ {
			clock.Advance(5 * time.Millisecond)
			ack += mss
			m.OnAck(ack, mss, 5*time.Millisecond)
			Expect(m.Window()).To(BeNumerically("<=", 20*mss))
			Expect(m.Window()).To(BeNumerically(">=", mss))
		}
	})
})
