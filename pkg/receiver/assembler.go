// Package receiver reassembles an ordered byte stream from data segments
// that may arrive lost, duplicated or out of order.
package receiver

import (
	"github.com/google/btree"

	"github.com/TeoSlayer/sackudp/pkg/protocol"
)

// chunk is an out-of-order segment waiting for the gap before it to fill.
type chunk struct {
	seq  uint32
	data []byte
}

func (c chunk) end() uint32 { return c.seq + uint32(len(c.data)) }

func chunkLess(a, b chunk) bool { return a.seq < b.seq }

// Stats counts what the assembler has seen.
type Stats struct {
	Segments   uint64 // data and EOF segments processed
	Duplicates uint64 // segments that added nothing
	OutOfOrder uint64 // segments buffered ahead of the cumulative point
	Delivered  uint64 // in-order bytes
}

// Assembler buffers segments and produces one ack per segment.
type Assembler struct {
	nextExpected uint32
	ooo          *btree.BTreeG[chunk]
	data         []byte

	eofSeen   bool
	eofOffset uint32

	stats Stats
}

// New creates an empty assembler expecting offset 0.
func New() *Assembler {
	return &Assembler{ooo: btree.NewG(16, chunkLess)}
}

// OnSegment consumes one segment and returns the ack answering it.
func (a *Assembler) OnSegment(seq uint32, payload []byte) protocol.Ack {
	a.stats.Segments++
	if protocol.IsEOF(payload) {
		a.onEOF(seq)
		return a.Ack()
	}

	end := seq + uint32(len(payload))
	switch {
	case len(payload) == 0 || end <= a.nextExpected:
		a.stats.Duplicates++
	case seq <= a.nextExpected:
		a.deliver(payload[a.nextExpected-seq:])
		a.drain()
	default:
		if _, ok := a.ooo.Get(chunk{seq: seq}); ok {
			a.stats.Duplicates++
			break
		}
		a.ooo.ReplaceOrInsert(chunk{seq: seq, data: append([]byte(nil), payload...)})
		a.stats.OutOfOrder++
	}
	return a.Ack()
}

func (a *Assembler) onEOF(seq uint32) {
	if a.eofSeen {
		a.stats.Duplicates++
		return
	}
	a.eofSeen = true
	a.eofOffset = seq
}

func (a *Assembler) deliver(b []byte) {
	a.data = append(a.data, b...)
	a.nextExpected += uint32(len(b))
	a.stats.Delivered += uint64(len(b))
}

// drain moves buffered chunks that now touch the cumulative point.
func (a *Assembler) drain() {
	for {
		c, ok := a.ooo.Min()
		if !ok || c.seq > a.nextExpected {
			return
		}
		a.ooo.DeleteMin()
		if c.end() > a.nextExpected {
			a.deliver(c.data[a.nextExpected-c.seq:])
		}
	}
}

// Ack returns the current acknowledgment. Once the stream is complete the
// cumulative value also covers the three EOF marker bytes.
func (a *Assembler) Ack() protocol.Ack {
	cum := a.nextExpected
	if a.Complete() {
		cum = a.eofOffset + uint32(len(protocol.EOFMarker))
	}
	return protocol.Ack{Cumulative: cum, SACK: a.sackBlocks()}
}

// sackBlocks returns the two largest contiguous buffered runs in ascending
// offset order. Ties favor the lower offset.
func (a *Assembler) sackBlocks() []protocol.SACKBlock {
	var runs []protocol.SACKBlock
	a.ooo.Ascend(func(c chunk) bool {
		if n := len(runs); n > 0 && c.seq <= runs[n-1].Right {
			if c.end() > runs[n-1].Right {
				runs[n-1].Right = c.end()
			}
			return true
		}
		runs = append(runs, protocol.SACKBlock{Left: c.seq, Right: c.end()})
		return true
	})
	if len(runs) <= protocol.MaxSACK {
		return runs
	}

	first, second := -1, -1
	for i, r := range runs {
		switch {
		case first < 0 || r.Len() > runs[first].Len():
			second = first
			first = i
		case second < 0 || r.Len() > runs[second].Len():
			second = i
		}
	}
	if second < first {
		first, second = second, first
	}
	return []protocol.SACKBlock{runs[first], runs[second]}
}

// Complete reports whether every byte up to the EOF marker has arrived.
func (a *Assembler) Complete() bool {
	return a.eofSeen && a.nextExpected >= a.eofOffset
}

// EOFSeen reports whether the EOF marker has arrived, even prematurely.
func (a *Assembler) EOFSeen() bool { return a.eofSeen }

// NextExpected returns the cumulative point.
func (a *Assembler) NextExpected() uint32 { return a.nextExpected }

// Buffered returns the number of out-of-order segments held.
func (a *Assembler) Buffered() int { return a.ooo.Len() }

// Bytes returns the in-order prefix assembled so far. The slice is owned by
// the assembler.
func (a *Assembler) Bytes() []byte { return a.data }

func (a *Assembler) Stats() Stats { return a.stats }
