package sender

import (
	"container/heap"
	"time"
)

// timer is a (deadline, seq) pair. Entries go stale when the record is
// acked, confirmed by SACK or rescheduled; stale entries are skipped lazily.
type timer struct {
	deadline time.Time
	seq      uint32
}

// timerQueue is a min-heap of timers ordered by deadline.
type timerQueue []timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(timer)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}

func (q *timerQueue) schedule(seq uint32, deadline time.Time) {
	heap.Push(q, timer{deadline: deadline, seq: seq})
}

func (q timerQueue) peek() (timer, bool) {
	if len(q) == 0 {
		return timer{}, false
	}
	return q[0], true
}

func (q *timerQueue) pop() timer {
	return heap.Pop(q).(timer)
}
