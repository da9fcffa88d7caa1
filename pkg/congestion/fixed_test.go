package congestion

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fixed", func() {
	It("never changes the window", func() {
		f := NewFixed(3 * mss)
		f.OnAck(mss, mss, 0)
		Expect(f.OnDuplicateAck(3, 4*mss)).To(BeTrue())
		f.OnTimeout(4 * mss)
		Expect(f.Window()).To(BeEquivalentTo(3 * mss))
	})

	It("signals one fast retransmit per episode", func() {
		f := NewFixed(3 * mss)
		Expect(f.OnDuplicateAck(3, 4*mss)).To(BeTrue())
		Expect(f.State().Phase).To(Equal(FastRecovery))
		Expect(f.OnDuplicateAck(3, 4*mss)).To(BeFalse())
		Expect(f.OnDuplicateAck(4, 4*mss)).To(BeFalse())

		f.OnAck(4*mss, 3*mss, 0)
		Expect(f.State().Phase).To(Equal(CongestionAvoidance))
		Expect(f.OnDuplicateAck(3, 7*mss)).To(BeTrue())
	})

	It("holds off fast retransmit until data outstanding at a timeout is acked", func() {
		f := NewFixed(3 * mss)
		Expect(f.OnDuplicateAck(3, 4*mss)).To(BeTrue())
		f.OnTimeout(4 * mss)
		Expect(f.OnDuplicateAck(3, 4*mss)).To(BeFalse())

		f.OnAck(2*mss, 2*mss, 0)
		Expect(f.OnDuplicateAck(3, 5*mss)).To(BeFalse())

		f.OnAck(4*mss, 2*mss, 0)
		Expect(f.OnDuplicateAck(3, 7*mss)).To(BeTrue())
	})
})
