package client

import (
	"context"
	"errors"

	"github.com/teamech/go-teamech/core"
	"github.com/teamech/go-teamech/shadowpad"
)

// authenticate repeats subscription attempts until one is accepted.
func (c *Client) authenticate(ctx context.Context, s *Session) state {
	for ctx.Err() == nil {
		if c.subscribe(ctx, s) {
			c.cfg.Logf("Subscribed to server at %s (session %s)", s.peer, s.id)
			if c.cfg.OnSubscribe != nil {
				c.cfg.OnSubscribe(s)
			}
			return stateOperate
		}
	}
	return stateRecover
}

// subscribe sends one subscription request and polls for the verdict. It
// reports false when the request should be sent again.
func (c *Client) subscribe(ctx context.Context, s *Session) bool {
	c.cfg.Logf("Trying to contact server...")
	if err := s.Send(nil); err != nil {
		c.cfg.Logf("Could not send authentication payload - %v", err)
		c.sleep(ctx, c.cfg.RetryDelay)
		return false
	}

	for i := 0; i < c.cfg.PollCount; i++ {
		if !c.sleep(ctx, c.cfg.PollInterval) {
			return false
		}

		n, from, err := s.recv()
		if errors.Is(err, core.ErrWouldBlock) {
			continue
		}
		if err != nil {
			c.cfg.Logf("Could not receive authentication response - %v", err)
			c.sleep(ctx, c.cfg.RetryDelay)
			return false
		}
		if n != core.ControlDatagram || !core.SameAddr(from, s.peer) {
			c.cfg.Logf("Got invalid message of length %d from %s.", n, from)
			if !c.sleep(ctx, c.cfg.RetryDelay) {
				return false
			}
			continue
		}

		content, _, err := core.Open(s.buf[:n], s.pad)
		if err != nil {
			if shadowpad.IsInvalid(err) {
				c.cfg.Logf("Response from server did not validate. Local pad file is incorrect or invalid.")
			} else {
				c.cfg.Logf("Failed to decrypt response from server - %v", err)
			}
			c.sleep(ctx, c.cfg.RetryDelay)
			return false
		}

		switch st := core.Status(content[0]); st {
		case core.StatusSubscribed:
			return true
		case core.StatusEndOfMedium:
			c.cfg.Logf("Pad file is correct, but subscription was rejected by server. Server may be full.")
			c.sleep(ctx, c.cfg.RetryDelay)
			return false
		default:
			c.cfg.Logf("Server at %s sent an unknown status code %s.", s.peer, st)
		}
	}
	return false
}
