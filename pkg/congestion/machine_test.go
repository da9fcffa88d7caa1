package congestion

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const mss = DefaultMSS

var _ = Describe("Machine", func() {
	var (
		m     *Machine
		clock *mockClock
	)

	BeforeEach(func() {
		clock = new(mockClock)
		*clock = mockClock(time.Unix(1000, 0))
		m = NewReno(Config{MaxWindow: 64 * mss, Clock: clock})
	})

	It("starts in slow start with one segment", func() {
		Expect(m.Window()).To(BeEquivalentTo(mss))
		Expect(m.State().Phase).To(Equal(SlowStart))
		Expect(m.State().SSThresh).To(BeEquivalentTo(64 * mss))
	})

	It("grows by the acked bytes in slow start", func() {
		m.OnAck(mss, mss, 10*time.Millisecond)
		Expect(m.Window()).To(BeEquivalentTo(2 * mss))
		m.OnAck(3*mss, 2*mss, 10*time.Millisecond)
		Expect(m.Window()).To(BeEquivalentTo(4 * mss))
	})

	It("moves to congestion avoidance at ssthresh and never exceeds the ceiling", func() {
		var ack uint32
		for i := 0; i < 200; i++ {
			ack += mss
			m.OnAck(ack, mss, 0)
			Expect(m.Window()).To(BeNumerically(">=", mss))
			Expect(m.Window()).To(BeNumerically("<=", 64*mss))
		}
		Expect(m.State().Phase).To(Equal(CongestionAvoidance))
		Expect(m.Window()).To(BeEquivalentTo(64 * mss))
	})

	It("grows about one segment per window in congestion avoidance", func() {
		m.OnTimeout(0)
		m.ssthresh = 8 * mss
		m.cwnd = 8 * mss
		m.phase = CongestionAvoidance
		var ack uint32
		for i := 0; i < 8; i++ {
			ack += mss
			m.OnAck(ack, mss, 0)
		}
		Expect(m.Window()).To(BeNumerically("~", 9*mss, mss/4))
	})

	It("ignores acks that acknowledge nothing", func() {
		m.OnAck(0, 0, 0)
		Expect(m.Window()).To(BeEquivalentTo(mss))
	})

	Context("duplicate acks", func() {
		BeforeEach(func() {
			m.cwnd = 20 * mss
			m.phase = CongestionAvoidance
		})

		It("does nothing before the third duplicate", func() {
			Expect(m.OnDuplicateAck(1, 30*mss)).To(BeFalse())
			Expect(m.OnDuplicateAck(2, 30*mss)).To(BeFalse())
			Expect(m.Window()).To(BeEquivalentTo(20 * mss))
			Expect(m.State().Phase).To(Equal(CongestionAvoidance))
		})

		It("enters fast recovery exactly once per episode", func() {
			Expect(m.OnDuplicateAck(1, 30*mss)).To(BeFalse())
			Expect(m.OnDuplicateAck(2, 30*mss)).To(BeFalse())
			Expect(m.OnDuplicateAck(3, 30*mss)).To(BeTrue())
			Expect(m.State().Phase).To(Equal(FastRecovery))
			Expect(m.State().SSThresh).To(BeEquivalentTo(10 * mss))
			Expect(m.Window()).To(BeEquivalentTo(10 * mss))

			for n := 4; n < 10; n++ {
				Expect(m.OnDuplicateAck(n, 30*mss)).To(BeFalse())
			}
			// inflated by one segment per extra duplicate
			Expect(m.Window()).To(BeEquivalentTo(16 * mss))
			Expect(m.State().SSThresh).To(BeEquivalentTo(10 * mss))

			// a second count of 3 inside the same episode is ignored
			Expect(m.OnDuplicateAck(3, 30*mss)).To(BeFalse())
		})

		It("deflates to ssthresh when the recovery point is acked", func() {
			m.OnDuplicateAck(3, 30*mss)
			m.OnDuplicateAck(4, 30*mss)
			m.OnAck(30*mss, 10*mss, 0)
			Expect(m.State().Phase).To(Equal(CongestionAvoidance))
			Expect(m.Window()).To(BeEquivalentTo(10 * mss))
		})

		It("stays in recovery on a partial ack", func() {
			m.OnDuplicateAck(3, 30*mss)
			m.OnAck(22*mss, 2*mss, 0)
			Expect(m.State().Phase).To(Equal(FastRecovery))
			Expect(m.Window()).To(BeEquivalentTo(9 * mss))
		})

		It("never drops ssthresh below two segments", func() {
			m.cwnd = 2 * mss
			Expect(m.OnDuplicateAck(3, 2*mss)).To(BeTrue())
			Expect(m.State().SSThresh).To(BeEquivalentTo(2 * mss))
		})
	})

	It("collapses to one segment on timeout", func() {
		m.cwnd = 20 * mss
		m.phase = CongestionAvoidance
		m.OnTimeout(30 * mss)
		Expect(m.Window()).To(BeEquivalentTo(mss))
		Expect(m.State().SSThresh).To(BeEquivalentTo(10 * mss))
		Expect(m.State().Phase).To(Equal(SlowStart))
	})

	It("can time out from fast recovery", func() {
		m.cwnd = 20 * mss
		m.phase = CongestionAvoidance
		m.OnDuplicateAck(3, 30*mss)
		m.OnTimeout(30 * mss)
		Expect(m.State().Phase).To(Equal(SlowStart))
		Expect(m.State().SSThresh).To(BeEquivalentTo(5 * mss))
	})
})

var _ = Describe("Machine after a timeout", func() {
	var m *Machine

	BeforeEach(func() {
		m = NewReno(Config{InitialWindow: 8 * mss, MaxWindow: 64 * mss})
		m.phase = CongestionAvoidance
	})

	It("does not open a second episode for the same cumulative ack", func() {
		Expect(m.OnDuplicateAck(3, 8*mss)).To(BeTrue())
		Expect(m.State().SSThresh).To(BeEquivalentTo(4 * mss))

		m.OnTimeout(8 * mss)
		Expect(m.State()).To(Equal(State{Cwnd: mss, SSThresh: 2 * mss, Phase: SlowStart}))

		for n := 1; n <= 6; n++ {
			Expect(m.OnDuplicateAck(n, 8*mss)).To(BeFalse())
		}
		Expect(m.State()).To(Equal(State{Cwnd: mss, SSThresh: 2 * mss, Phase: SlowStart}))
	})

	It("ignores duplicates below the recovery point after a plain timeout", func() {
		m.OnTimeout(8 * mss)
		m.OnAck(3*mss, 3*mss, 0)
		Expect(m.OnDuplicateAck(3, 9*mss)).To(BeFalse())
		Expect(m.State().Phase).ToNot(Equal(FastRecovery))
	})

	It("allows a new episode once the recovery point is acked", func() {
		m.OnTimeout(8 * mss)
		m.OnAck(8*mss, 8*mss, 0)
		Expect(m.OnDuplicateAck(3, 12*mss)).To(BeTrue())
		Expect(m.State().Phase).To(Equal(FastRecovery))
	})
})

var _ = Describe("ParseAlgorithm", func() {
	It("accepts known names", func() {
		for in, want := range map[string]Algorithm{
			"fixed": AlgorithmFixed,
			"AIMD":  AlgorithmAIMD,
			"reno":  AlgorithmAIMD,
			"cubic": AlgorithmCubic,
			"":      AlgorithmCubic,
		} {
			got, err := ParseAlgorithm(in)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(want))
		}
	})

	It("rejects unknown names", func() {
		_, err := ParseAlgorithm("bbr")
		Expect(err).To(MatchError(ContainSubstring("bbr")))
	})

	It("builds each controller", func() {
		for _, a := range []Algorithm{AlgorithmFixed, AlgorithmAIMD, AlgorithmCubic} {
			c, err := New(a, Config{MaxWindow: 3 * mss})
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Window()).To(BeNumerically(">=", mss))
		}
	})
})
