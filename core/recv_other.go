//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package core

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"time"
)

// pollWait is how long a receive may wait where the platform offers no
// per-call non-blocking flag.
const pollWait = time.Millisecond

// RecvNonblock reads one pending datagram into b, waiting at most pollWait.
// It returns ErrWouldBlock if none arrived.
func RecvNonblock(c *net.UDPConn, b []byte) (int, netip.AddrPort, error) {
	c.SetReadDeadline(time.Now().Add(pollWait))
	n, from, err := c.ReadFromUDPAddrPort(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, from, ErrWouldBlock
	}
	return n, from, err
}
