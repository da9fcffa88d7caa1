package transport

import "go.uber.org/atomic"

// Stats counts socket-level activity. Safe for concurrent reads while a
// session runs.
type Stats struct {
	DatagramsSent atomic.Uint64
	DatagramsRecv atomic.Uint64
	BytesSent     atomic.Uint64
	BytesRecv     atomic.Uint64
	AcksSent      atomic.Uint64
	Malformed     atomic.Uint64 // dropped undecodable datagrams
	Foreign       atomic.Uint64 // dropped datagrams from an unexpected peer
	SendErrors    atomic.Uint64
	EOFSent       atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	DatagramsSent uint64
	DatagramsRecv uint64
	BytesSent     uint64
	BytesRecv     uint64
	AcksSent      uint64
	Malformed     uint64
	Foreign       uint64
	SendErrors    uint64
	EOFSent       uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		DatagramsSent: s.DatagramsSent.Load(),
		DatagramsRecv: s.DatagramsRecv.Load(),
		BytesSent:     s.BytesSent.Load(),
		BytesRecv:     s.BytesRecv.Load(),
		AcksSent:      s.AcksSent.Load(),
		Malformed:     s.Malformed.Load(),
		Foreign:       s.Foreign.Load(),
		SendErrors:    s.SendErrors.Load(),
		EOFSent:       s.EOFSent.Load(),
	}
}
