// Package client runs the subscriber side of a pad-protected datagram session
// with a relay server.
//
// A Client loops forever through four nested states. Recovery binds a fresh
// socket and forgets every remembered datagram. Authentication sends an empty
// request and polls for the server's verdict. Operate ticks at a fine
// interval, and on each tick Drain reads every pending datagram, filtering
// duplicates, forgeries and stale messages before delivering the rest. Every
// way out of Operate leads back to Recovery.
package client

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/teamech/go-teamech/core"
	"github.com/teamech/go-teamech/internal"
	"github.com/teamech/go-teamech/shadowpad"
)

// Defaults for Config fields left zero.
const (
	DefaultRetryDelay   = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollCount    = 10
	DefaultTick         = time.Millisecond
	DefaultInvalidDelay = 2 * time.Second
)

// Config configures a Client. Peer and Pad are required.
type Config struct {
	Peer      netip.AddrPort
	LocalPort int // 0 lets the OS pick
	Pad       *shadowpad.Pad

	RetryDelay   time.Duration // backoff after a failed or rejected attempt
	PollInterval time.Duration // pause between polls for the subscription verdict
	PollCount    int           // polls before the request is sent again
	Tick         time.Duration // idle delay between drains
	InvalidDelay time.Duration // pause before rebuilding after a forged datagram
	Tolerance    time.Duration // allowed distance between send time and local clock
	RecentSize   int           // raw datagrams remembered for duplicate detection

	// ReplayFilter remembers nonces across session rebuilds. Nil disables it.
	ReplayFilter *internal.BloomRing

	OnMessage   func(Message)
	OnStatus    func(core.Status)
	OnSubscribe func(*Session)
	Reply       ReplyFunc

	// OnTick runs once per Operate tick after draining. It must return
	// promptly; receiving stalls while it runs.
	OnTick func(*Session)

	Logf   func(format string, v ...interface{}) // status for the operator
	Debugf func(format string, v ...interface{}) // verbose diagnostics

	Now func() time.Time
}

// BindError means the local socket could not be bound. It is the only error
// that stops a Client on its own.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("could not bind to local port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Client is a subscriber. It is driven by a single goroutine calling Run.
type Client struct {
	cfg Config
}

// New returns a Client for cfg, filling in defaults.
func New(cfg Config) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollCount <= 0 {
		cfg.PollCount = DefaultPollCount
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.InvalidDelay <= 0 {
		cfg.InvalidDelay = DefaultInvalidDelay
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = core.DefaultTolerance
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = internal.DefaultRecentSize
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...interface{}) {}
	}
	if cfg.Debugf == nil {
		cfg.Debugf = func(string, ...interface{}) {}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Peer = netip.AddrPortFrom(cfg.Peer.Addr().Unmap(), cfg.Peer.Port())
	return &Client{cfg: cfg}
}

type state int

const (
	stateAuth state = iota
	stateOperate
	stateRecover
)

func (s state) String() string {
	switch s {
	case stateAuth:
		return "authenticate"
	case stateOperate:
		return "operate"
	}
	return "recover"
}

// Run keeps a session with the peer alive until ctx is done, rebuilding it
// from scratch whenever it breaks. It returns ctx.Err() after cancellation,
// or a *BindError if a socket could not be bound.
func (c *Client) Run(ctx context.Context) error {
	for {
		s, err := c.bind()
		if err != nil {
			return err
		}
		c.cfg.Debugf("session %s bound to %s", s.id, s.LocalAddr())
		c.run(ctx, s)
		s.close()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *Client) run(ctx context.Context, s *Session) {
	st := stateAuth
	for st != stateRecover && ctx.Err() == nil {
		next := st
		switch st {
		case stateAuth:
			next = c.authenticate(ctx, s)
		case stateOperate:
			next = c.operate(ctx, s)
		}
		c.cfg.Debugf("session %s: %s -> %s", s.id, st, next)
		st = next
	}
}

func (c *Client) bind() (*Session, error) {
	network := "udp6"
	if c.cfg.Peer.Addr().Is4() {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: c.cfg.LocalPort})
	if err != nil {
		return nil, &BindError{Port: c.cfg.LocalPort, Err: err}
	}
	return newSession(conn, c.cfg), nil
}

// sleep pauses for d and reports whether ctx is still live.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
