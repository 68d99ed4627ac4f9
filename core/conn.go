package core

import (
	"io"
	"net"
	"time"

	"github.com/teamech/go-teamech/shadowpad"
)

// PacketConn stamps and seals every datagram written through it and opens
// every datagram read from it.
type PacketConn struct {
	net.PacketConn
	pad *shadowpad.Pad
	now func() time.Time
}

// NewPacketConn wraps c with pad protection. now stamps outgoing envelopes;
// nil means time.Now.
func NewPacketConn(c net.PacketConn, pad *shadowpad.Pad, now func() time.Time) *PacketConn {
	if now == nil {
		now = time.Now
	}
	return &PacketConn{PacketConn: c, pad: pad, now: now}
}

// WriteTo seals b with the current time and writes it to addr.
func (c *PacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	pkt, err := Seal(b, c.pad, c.now())
	if err != nil {
		return 0, err
	}
	if _, err := c.PacketConn.WriteTo(pkt, addr); err != nil {
		return 0, err
	}
	return len(b), nil
}

// ReadFrom reads one datagram and copies its content into b. The send time
// is discarded; use ReadEnvelope to check freshness.
func (c *PacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	content, _, addr, err := c.ReadEnvelope()
	if err != nil {
		return 0, addr, err
	}
	if len(b) < len(content) {
		return 0, addr, io.ErrShortBuffer
	}
	return copy(b, content), addr, nil
}

// ReadEnvelope reads one datagram and returns its content with the send time
// claimed by the sender.
func (c *PacketConn) ReadEnvelope() (content []byte, sent time.Time, addr net.Addr, err error) {
	buf := make([]byte, MaxDatagram)
	n, addr, err := c.PacketConn.ReadFrom(buf)
	if err != nil {
		return nil, time.Time{}, addr, err
	}
	content, sent, err = Open(buf[:n], c.pad)
	return content, sent, addr, err
}
