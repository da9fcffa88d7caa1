// Package lossy wraps a net.PacketConn and impairs outgoing datagrams:
// random drop, duplication and reordering. Used by tests and the loopback
// command to exercise recovery paths.
package lossy

import (
	"math/rand"
	"net"
	"sync"
)

// Profile describes the impairment. Rates are probabilities in [0, 1].
type Profile struct {
	Drop      float64
	Duplicate float64
	Reorder   float64 // hold a datagram back until the next one is sent
	Seed      int64
}

// Active reports whether the profile impairs anything.
func (p Profile) Active() bool {
	return p.Drop > 0 || p.Duplicate > 0 || p.Reorder > 0
}

// Counters reports what the wrapper did.
type Counters struct {
	Written    int
	Dropped    int
	Duplicated int
	Reordered  int
}

// Conn is an impaired net.PacketConn.
type Conn struct {
	net.PacketConn

	mu       sync.Mutex
	profile  Profile
	rng      *rand.Rand
	held     []byte
	heldAddr net.Addr
	counters Counters
}

// Wrap impairs conn according to p.
func Wrap(conn net.PacketConn, p Profile) *Conn {
	return &Conn{
		PacketConn: conn,
		profile:    p,
		rng:        rand.New(rand.NewSource(p.Seed)),
	}
}

// WriteTo implements net.PacketConn. A dropped datagram still reports success.
func (c *Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.Written++

	if c.rng.Float64() < c.profile.Drop {
		c.counters.Dropped++
		return len(b), nil
	}
	if c.held == nil && c.rng.Float64() < c.profile.Reorder {
		c.held = append([]byte(nil), b...)
		c.heldAddr = addr
		c.counters.Reordered++
		return len(b), nil
	}

	n, err := c.PacketConn.WriteTo(b, addr)
	if err != nil {
		return n, err
	}
	if c.rng.Float64() < c.profile.Duplicate {
		c.counters.Duplicated++
		c.PacketConn.WriteTo(b, addr)
	}
	if c.held != nil {
		c.PacketConn.WriteTo(c.held, c.heldAddr)
		c.held, c.heldAddr = nil, nil
	}
	return n, nil
}

// Counters returns a snapshot of the impairment counters.
func (c *Conn) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}
