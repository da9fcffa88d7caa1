package protocol

import "errors"

// Wire sizes shared by data segments and acknowledgments.
const (
	HeaderSize  = 20               // seq(4) + reserved(16)
	MSS         = 1180             // max payload per data segment
	MaxDatagram = HeaderSize + MSS // 1200 bytes on the wire
	MaxSACK     = 2                // SACK blocks carried per ack
	AckSize     = 4 + MaxSACK*8    // cum(4) + blocks(16)
	eofLen      = 3
)

// RequestByte is the single-byte payload a receiver sends to open a transfer.
const RequestByte byte = 0x52

// EOFMarker is the payload of the End-Of-Stream segment, sent at seq = total length.
var EOFMarker = []byte("EOF")

// Sentinel errors shared across packages.
var (
	ErrShortPacket     = errors.New("packet too short")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// IsEOF reports whether payload is the End-Of-Stream marker.
func IsEOF(payload []byte) bool {
	return len(payload) == eofLen && payload[0] == 'E' && payload[1] == 'O' && payload[2] == 'F'
}

// IsRequest reports whether a datagram is a transfer request rather than an
// ack or data segment.
func IsRequest(b []byte) bool {
	return len(b) > 0 && len(b) < HeaderSize
}
