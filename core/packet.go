package core

import (
	"errors"
	"net/netip"
	"time"

	"github.com/teamech/go-teamech/shadowpad"
)

// ErrWouldBlock means no datagram was pending.
var ErrWouldBlock = errors.New("core: would block")

// PacketWriter is implemented by *net.UDPConn.
type PacketWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// SendRaw writes b to addr as one datagram. Interrupted writes and short
// writes are retried in full; any other error is returned as is, including
// a full transmit buffer.
func SendRaw(w PacketWriter, addr netip.AddrPort, b []byte) error {
	for {
		n, err := w.WriteToUDPAddrPort(b, addr)
		if err != nil {
			if interrupted(err) {
				continue
			}
			return err
		}
		if n >= len(b) {
			return nil
		}
	}
}

// Seal stamps payload with t and encrypts it with pad.
func Seal(payload []byte, pad *shadowpad.Pad, t time.Time) ([]byte, error) {
	env := Stamp(payload, t)
	return shadowpad.Pack(make([]byte, len(env)+shadowpad.Overhead), env, pad)
}

// Open decrypts pkt with pad and splits off its timestamp.
func Open(pkt []byte, pad *shadowpad.Pad) (content []byte, sent time.Time, err error) {
	env, err := shadowpad.Unpack(make([]byte, len(pkt)), pkt, pad)
	if err != nil {
		return nil, time.Time{}, err
	}
	return SplitEnvelope(env)
}

// Send seals payload with the current time t and writes it to addr.
func Send(w PacketWriter, addr netip.AddrPort, payload []byte, pad *shadowpad.Pad, t time.Time) error {
	pkt, err := Seal(payload, pad, t)
	if err != nil {
		return err
	}
	return SendRaw(w, addr, pkt)
}

// SameAddr compares two endpoints ignoring IPv4-in-IPv6 mapping and zones.
func SameAddr(a, b netip.AddrPort) bool {
	return a.Port() == b.Port() &&
		a.Addr().Unmap().WithZone("") == b.Addr().Unmap().WithZone("")
}
