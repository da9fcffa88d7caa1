package pool

import "sync"

// DatagramBufSize is larger than the biggest valid datagram so that
// oversized ones can be detected rather than silently truncated.
const DatagramBufSize = 2048

var datagramPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, DatagramBufSize)
		return &b
	},
}

// GetDatagram returns a datagram buffer from the pool.
func GetDatagram() *[]byte {
	return datagramPool.Get().(*[]byte)
}

// PutDatagram returns a datagram buffer to the pool.
func PutDatagram(b *[]byte) {
	if b == nil || cap(*b) < DatagramBufSize {
		return
	}
	*b = (*b)[:DatagramBufSize]
	datagramPool.Put(b)
}
