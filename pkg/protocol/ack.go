package protocol

import (
	"encoding/binary"
	"fmt"
)

// Ack layout (20 bytes, unused block slots zero):
//
//	Byte  0-3:   Cumulative Ack (next byte expected)
//	Byte  4-11:  SACK block 1 (Left:4, Right:4)
//	Byte  12-19: SACK block 2 (Left:4, Right:4)

// SACKBlock represents a contiguous range of received bytes.
// Left is the seq of the first byte; Right is the seq of the first byte AFTER the range.
type SACKBlock struct {
	Left  uint32
	Right uint32
}

// Len returns the number of bytes covered by the block.
func (b SACKBlock) Len() uint32 { return b.Right - b.Left }

// Covers reports whether [seq, end) lies entirely inside the block.
func (b SACKBlock) Covers(seq, end uint32) bool {
	return seq >= b.Left && end <= b.Right
}

// Ack is a decoded acknowledgment.
type Ack struct {
	Cumulative uint32
	SACK       []SACKBlock
}

func (a Ack) String() string {
	return fmt.Sprintf("ack{cum=%d sack=%v}", a.Cumulative, a.SACK)
}

// EncodeAck serializes an ack. Blocks beyond MaxSACK are dropped.
func EncodeAck(cum uint32, blocks []SACKBlock) []byte {
	buf := make([]byte, AckSize)
	binary.BigEndian.PutUint32(buf[0:4], cum)
	n := len(blocks)
	if n > MaxSACK {
		n = MaxSACK
	}
	for i := 0; i < n; i++ {
		off := 4 + i*8
		binary.BigEndian.PutUint32(buf[off:off+4], blocks[i].Left)
		binary.BigEndian.PutUint32(buf[off+4:off+8], blocks[i].Right)
	}
	return buf
}

// DecodeAck parses an ack. Blocks with Right <= Left (including the zero
// padding) are discarded.
func DecodeAck(b []byte) (Ack, error) {
	if len(b) < AckSize {
		return Ack{}, fmt.Errorf("%w: %d bytes (min %d)", ErrShortPacket, len(b), AckSize)
	}
	a := Ack{Cumulative: binary.BigEndian.Uint32(b[0:4])}
	for i := 0; i < MaxSACK; i++ {
		off := 4 + i*8
		blk := SACKBlock{
			Left:  binary.BigEndian.Uint32(b[off : off+4]),
			Right: binary.BigEndian.Uint32(b[off+4 : off+8]),
		}
		if blk.Right <= blk.Left {
			continue
		}
		a.SACK = append(a.SACK, blk)
	}
	return a, nil
}
