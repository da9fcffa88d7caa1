package protocol

import (
	"encoding/binary"
	"fmt"
)

// Data segment layout (20-byte header + payload):
//
//	Byte  0-3:   Sequence Number (byte offset of the first payload byte)
//	Byte  4-19:  Reserved, zero on send, ignored on receive
//	Byte  20-:   Payload (at most MSS bytes)

// Segment is a decoded data segment.
type Segment struct {
	Seq     uint32
	Payload []byte
}

// End returns the offset of the first byte after the segment.
func (s Segment) End() uint32 { return s.Seq + uint32(len(s.Payload)) }

// EncodeData serializes a data segment.
func EncodeData(seq uint32, payload []byte) ([]byte, error) {
	if len(payload) > MSS {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MSS)
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeData parses a data segment. The returned payload aliases b.
func DecodeData(b []byte) (uint32, []byte, error) {
	if len(b) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (min %d)", ErrShortPacket, len(b), HeaderSize)
	}
	return binary.BigEndian.Uint32(b[0:4]), b[HeaderSize:], nil
}
