//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package core

import (
	"net"
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

// RecvNonblock reads one pending datagram into b without waiting.
// It returns ErrWouldBlock if none is queued.
func RecvNonblock(c *net.UDPConn, b []byte) (int, netip.AddrPort, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	var (
		n    int
		from unix.Sockaddr
		rerr error
	)
	err = rc.Read(func(fd uintptr) bool {
		for {
			n, from, rerr = unix.Recvfrom(int(fd), b, unix.MSG_DONTWAIT)
			if rerr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	switch rerr {
	case nil:
	case unix.EAGAIN:
		return 0, netip.AddrPort{}, ErrWouldBlock
	default:
		return 0, netip.AddrPort{}, os.NewSyscallError("recvfrom", rerr)
	}
	return n, sockaddrToAddrPort(from), nil
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				ip = ip.WithZone(ifi.Name)
			}
		}
		return netip.AddrPortFrom(ip, uint16(sa.Port))
	}
	return netip.AddrPort{}
}
