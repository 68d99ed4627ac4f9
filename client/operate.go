package client

import (
	"context"
	"errors"
	"net/netip"

	"github.com/teamech/go-teamech/core"
	"github.com/teamech/go-teamech/shadowpad"
)

type verdict int

const (
	keepDraining verdict = iota
	drained
	rebuild
)

// operate drains the socket once per tick until the session must be rebuilt.
func (c *Client) operate(ctx context.Context, s *Session) state {
	for {
		if !c.sleep(ctx, c.cfg.Tick) {
			return stateRecover
		}
		if c.drain(ctx, s) == rebuild {
			return stateRecover
		}
		if c.cfg.OnTick != nil {
			c.cfg.OnTick(s)
		}
	}
}

// drain handles datagrams until none is pending.
func (c *Client) drain(ctx context.Context, s *Session) verdict {
	for {
		n, from, err := s.recv()
		if errors.Is(err, core.ErrWouldBlock) {
			return drained
		}
		if err != nil {
			c.cfg.Logf("Could not receive packet: %v. Trying again in %v...", err, c.cfg.RetryDelay)
			if !c.sleep(ctx, c.cfg.RetryDelay) {
				return rebuild
			}
			continue
		}
		if v := c.handle(ctx, s, s.buf[:n], from); v != keepDraining {
			return v
		}
	}
}

// handle processes one received datagram.
func (c *Client) handle(ctx context.Context, s *Session, pkt []byte, from netip.AddrPort) verdict {
	if !core.SameAddr(from, s.peer) {
		c.cfg.Debugf("ignoring %d bytes from unexpected sender %s", len(pkt), from)
		return keepDraining
	}
	class := core.Classify(len(pkt))
	if class == core.ClassShort {
		c.cfg.Debugf("ignoring short datagram of %d bytes", len(pkt))
		return keepDraining
	}

	// The same payload sent twice is encrypted under two nonces, so equal
	// bytes always mean a double send or a replay.
	if s.recent.Seen(pkt) {
		c.cfg.Debugf("ignoring duplicate datagram")
		return keepDraining
	}
	s.recent.Add(pkt)

	content, sent, err := core.Open(pkt, s.pad)
	if err != nil {
		// Only a verified empty envelope fits in 24 bytes.
		if len(pkt) == core.MinDatagram {
			c.cfg.Debugf("ignoring unverifiable %d byte datagram: %v", len(pkt), err)
			return keepDraining
		}
		if shadowpad.IsInvalid(err) {
			c.cfg.Logf("Warning: Message failed to validate. Pad file may be incorrect. Rebuilding session %s.", s.id)
			if err := s.sendStatus(from, core.StatusInvalid); err != nil {
				c.cfg.Debugf("could not send %s status: %v", core.StatusInvalid, err)
			}
			c.sleep(ctx, c.cfg.InvalidDelay)
			return rebuild
		}
		c.cfg.Logf("Decrypting of message failed - %v.", err)
		if err := s.sendStatus(from, core.StatusDecryptFailed); err != nil {
			c.cfg.Debugf("could not send %s status: %v", core.StatusDecryptFailed, err)
		}
		return keepDraining
	}

	nonce := pkt[len(pkt)-shadowpad.NonceSize:]
	if c.cfg.ReplayFilter.Test(nonce) {
		c.cfg.Debugf("ignoring datagram with a replayed nonce %x", nonce)
		return keepDraining
	}
	if now := c.cfg.Now(); !core.Fresh(sent, now, c.cfg.Tolerance) {
		c.cfg.Debugf("ignoring message sent at %v, %v away from local clock", sent, now.Sub(sent))
		return keepDraining
	}
	c.cfg.ReplayFilter.Add(nonce)

	if class == core.ClassControl {
		if len(content) == 0 {
			c.cfg.Debugf("ignoring empty control message")
			return keepDraining
		}
		st := core.Status(content[0])
		if c.cfg.OnStatus != nil {
			c.cfg.OnStatus(st)
		}
		if st == core.StatusEndOfMedium {
			c.cfg.Logf("Subscription expiration notification received - renewing subscription to %s (session %s)", s.peer, s.id)
			return rebuild
		}
		return keepDraining
	}

	m := Message{
		Content: content,
		Text:    lossyText(content),
		Sent:    sent,
		Raw:     append([]byte(nil), pkt...),
	}
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(m)
	}
	if err := s.sendStatus(from, core.StatusAck); err != nil {
		c.cfg.Debugf("could not send %s status: %v", core.StatusAck, err)
	}
	if c.cfg.Reply == nil {
		return keepDraining
	}
	if reply := c.cfg.Reply(m, s); len(reply) > 0 {
		if err := s.Send(reply); err != nil {
			c.cfg.Logf("Encrypting message failed - %v", err)
		}
	}
	return keepDraining
}
