package client

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/teamech/go-teamech/core"
	"github.com/teamech/go-teamech/internal"
	"github.com/teamech/go-teamech/shadowpad"
)

// Message is an application message received from the peer.
type Message struct {
	Content []byte    // decrypted content without the timestamp
	Text    string    // Content decoded as UTF-8, invalid sequences replaced
	Sent    time.Time // send time claimed by the peer
	Raw     []byte    // datagram as received
}

// ReplyFunc computes the reply to a message. An empty reply sends nothing.
type ReplyFunc func(m Message, s *Session) []byte

// Session is one authenticated run: a bound socket, the peer and the set of
// recently received datagrams. A new Session is built on every recovery.
type Session struct {
	id     uuid.UUID
	conn   *net.UDPConn
	peer   netip.AddrPort
	pad    *shadowpad.Pad
	now    func() time.Time
	recent *internal.RecentSet
	buf    []byte
}

func newSession(conn *net.UDPConn, cfg Config) *Session {
	return &Session{
		id:     uuid.New(),
		conn:   conn,
		peer:   cfg.Peer,
		pad:    cfg.Pad,
		now:    cfg.Now,
		recent: internal.NewRecentSet(cfg.RecentSize),
		buf:    make([]byte, core.MaxDatagram),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Peer returns the server address.
func (s *Session) Peer() netip.AddrPort { return s.peer }

// LocalAddr returns the address the session's socket is bound to.
func (s *Session) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Send encrypts payload and sends it to the peer.
func (s *Session) Send(payload []byte) error {
	return s.sendTo(s.peer, payload)
}

func (s *Session) sendTo(addr netip.AddrPort, payload []byte) error {
	return core.Send(s.conn, addr, payload, s.pad, s.now())
}

func (s *Session) sendStatus(addr netip.AddrPort, st core.Status) error {
	return s.sendTo(addr, []byte{byte(st)})
}

func (s *Session) recv() (int, netip.AddrPort, error) {
	return core.RecvNonblock(s.conn, s.buf)
}

func (s *Session) close() error {
	s.recent.Reset()
	return s.conn.Close()
}
