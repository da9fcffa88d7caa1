// Package sockopt sets IP-level options on UDP sockets.
package sockopt

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// SetTOS marks outgoing datagrams with the given TOS / traffic class byte.
func SetTOS(conn net.PacketConn, tos int) error {
	if isIPv4(conn.LocalAddr()) {
		return ipv4.NewPacketConn(conn).SetTOS(tos)
	}
	return ipv6.NewPacketConn(conn).SetTrafficClass(tos)
}

// TOS returns the TOS / traffic class currently set on conn.
func TOS(conn net.PacketConn) (int, error) {
	if isIPv4(conn.LocalAddr()) {
		return ipv4.NewPacketConn(conn).TOS()
	}
	return ipv6.NewPacketConn(conn).TrafficClass()
}

func isIPv4(addr net.Addr) bool {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return true
	}
	return udp.IP.To4() != nil
}
