package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamech/go-teamech/core"
	"github.com/teamech/go-teamech/internal"
	"github.com/teamech/go-teamech/shadowpad"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, b)
	require.NoError(t, err)
	return b
}

func padFrom(t *testing.T, r io.ReaderAt, size int) *shadowpad.Pad {
	t.Helper()
	pad, err := shadowpad.NewPad(r, int64(size))
	require.NoError(t, err)
	return pad
}

func newPad(t *testing.T) *shadowpad.Pad {
	t.Helper()
	b := randomBytes(t, 1<<14)
	return padFrom(t, bytes.NewReader(b), len(b))
}

// flakyReader fails the next failures reads and then recovers.
type flakyReader struct {
	r        io.ReaderAt
	failures atomic.Int32
}

func (f *flakyReader) ReadAt(b []byte, off int64) (int, error) {
	if f.failures.Add(-1) >= 0 {
		return 0, errors.New("pad unavailable")
	}
	f.failures.Store(0)
	return f.r.ReadAt(b, off)
}

// relay plays the server side over a loopback socket.
type relay struct {
	t      *testing.T
	conn   *net.UDPConn
	pc     *core.PacketConn
	pad    *shadowpad.Pad
	client netip.AddrPort
}

func newRelay(t *testing.T, pad *shadowpad.Pad) *relay {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &relay{t: t, conn: conn, pc: core.NewPacketConn(conn, pad, nil), pad: pad}
}

func (r *relay) addr() netip.AddrPort {
	return r.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// recv waits for the next datagram from the client and decrypts it.
func (r *relay) recv() []byte {
	r.t.Helper()
	r.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	content, sent, from, err := r.pc.ReadEnvelope()
	require.NoError(r.t, err)
	ap := from.(*net.UDPAddr).AddrPort()
	r.client = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	require.True(r.t, core.Fresh(sent, time.Now(), core.DefaultTolerance))
	return content
}

// expectSilence asserts the client sends nothing for d.
func (r *relay) expectSilence(d time.Duration) {
	r.t.Helper()
	buf := make([]byte, core.MaxDatagram)
	r.conn.SetReadDeadline(time.Now().Add(d))
	n, _, err := r.conn.ReadFromUDPAddrPort(buf)
	require.Error(r.t, err, "unexpected %d byte datagram", n)
}

func (r *relay) expectAuth() netip.AddrPort {
	r.t.Helper()
	content := r.recv()
	require.Empty(r.t, content, "expected a subscription request")
	return r.client
}

func (r *relay) expectStatus(st core.Status) {
	r.t.Helper()
	assert.Equal(r.t, []byte{byte(st)}, r.recv())
}

func (r *relay) sendRaw(b []byte) {
	r.t.Helper()
	require.NoError(r.t, core.SendRaw(r.conn, r.client, b))
}

func (r *relay) seal(payload []byte, at time.Time) []byte {
	r.t.Helper()
	pkt, err := core.Seal(payload, r.pad, at)
	require.NoError(r.t, err)
	return pkt
}

func (r *relay) send(payload []byte) []byte {
	r.t.Helper()
	pkt := r.seal(payload, time.Now())
	r.sendRaw(pkt)
	return pkt
}

func (r *relay) status(st core.Status) {
	r.t.Helper()
	_, err := r.pc.WriteTo([]byte{byte(st)}, net.UDPAddrFromAddrPort(r.client))
	require.NoError(r.t, err)
}

func (r *relay) subscribe() netip.AddrPort {
	r.t.Helper()
	from := r.expectAuth()
	r.status(core.StatusSubscribed)
	return from
}

type harness struct {
	*relay
	msgs     chan Message
	statuses chan core.Status
	subs     chan *Session
	cancel   context.CancelFunc
	done     chan error
}

func start(t *testing.T, mod func(*Config)) *harness {
	t.Helper()
	return startWith(t, newPad(t), mod)
}

// startWith runs a client against a relay holding pad.
func startWith(t *testing.T, pad *shadowpad.Pad, mod func(*Config)) *harness {
	t.Helper()
	h := &harness{
		relay:    newRelay(t, pad),
		msgs:     make(chan Message, 16),
		statuses: make(chan core.Status, 16),
		subs:     make(chan *Session, 16),
		done:     make(chan error, 1),
	}
	cfg := Config{
		Peer:         h.addr(),
		Pad:          pad,
		RetryDelay:   30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		InvalidDelay: 10 * time.Millisecond,
		OnMessage:    func(m Message) { h.msgs <- m },
		OnStatus:     func(st core.Status) { h.statuses <- st },
		OnSubscribe:  func(s *Session) { h.subs <- s },
		Logf:         t.Logf,
	}
	if mod != nil {
		mod(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	c := New(cfg)
	go func() { h.done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("client did not stop")
		}
	})
	return h
}

func (h *harness) session() *Session {
	h.t.Helper()
	select {
	case s := <-h.subs:
		return s
	case <-time.After(3 * time.Second):
		h.t.Fatal("client did not subscribe")
	}
	return nil
}

func (h *harness) message() Message {
	h.t.Helper()
	select {
	case m := <-h.msgs:
		return m
	case <-time.After(3 * time.Second):
		h.t.Fatal("no message delivered")
	}
	return Message{}
}

func (h *harness) noMessages() {
	h.t.Helper()
	select {
	case m := <-h.msgs:
		h.t.Fatalf("unexpected message %q", m.Text)
	default:
	}
}

func (h *harness) noRebuild() {
	h.t.Helper()
	select {
	case <-h.subs:
		h.t.Fatal("session was rebuilt")
	default:
	}
}

func echoHello(m Message, _ *Session) []byte {
	if m.Text == "Hello world!" {
		return []byte("Hello world!")
	}
	return nil
}

func TestEndToEnd(t *testing.T) {
	h := start(t, func(cfg *Config) { cfg.Reply = echoHello })

	first := h.subscribe()
	s1 := h.session()
	assert.Equal(t, h.addr(), s1.Peer())
	assert.Equal(t, first.Port(), s1.LocalAddr().Port())

	h.send([]byte("Hello world!"))
	m := h.message()
	assert.Equal(t, "Hello world!", m.Text)
	assert.Equal(t, []byte("Hello world!"), m.Content)
	assert.Len(t, m.Raw, len(m.Content)+core.MinDatagram)
	h.expectStatus(core.StatusAck)
	assert.Equal(t, []byte("Hello world!"), h.recv())

	h.send([]byte("no reply for this"))
	assert.Equal(t, "no reply for this", h.message().Text)
	h.expectStatus(core.StatusAck)
	h.expectSilence(50 * time.Millisecond)

	// end of medium forces a full rebuild with a fresh socket
	h.status(core.StatusEndOfMedium)
	assert.Equal(t, core.StatusEndOfMedium, <-h.statuses)
	h.subscribe()
	s2 := h.session()
	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.NotEqual(t, uuid.Nil, s2.ID())

	h.send([]byte("after rebuild"))
	assert.Equal(t, "after rebuild", h.message().Text)
	h.expectStatus(core.StatusAck)
}

func TestDuplicateDeliveredOnce(t *testing.T) {
	h := start(t, nil)
	h.subscribe()
	h.session()

	pkt := h.send([]byte("once"))
	h.sendRaw(pkt)
	h.send([]byte("twice"))

	assert.Equal(t, "once", h.message().Text)
	h.expectStatus(core.StatusAck)
	assert.Equal(t, "twice", h.message().Text)
	h.expectStatus(core.StatusAck)
	h.noMessages()
}

func TestStaleMessagesDropped(t *testing.T) {
	h := start(t, nil)
	h.subscribe()
	h.session()

	h.sendRaw(h.seal([]byte("old"), time.Now().Add(-11*time.Second)))
	h.sendRaw(h.seal([]byte("future"), time.Now().Add(11*time.Second)))
	h.sendRaw(h.seal([]byte("skewed"), time.Now().Add(-5*time.Second)))

	assert.Equal(t, "skewed", h.message().Text)
	h.expectStatus(core.StatusAck)
	h.noMessages()
}

func TestShortAndEmptyDatagramsIgnored(t *testing.T) {
	h := start(t, nil)
	h.subscribe()
	h.session()

	junk := make([]byte, core.MinDatagram-1)
	rand.Read(junk)
	h.sendRaw(junk)

	empty := h.send(nil)
	require.Len(t, empty, core.MinDatagram)

	// 24 bytes that do not verify are too short to be a message
	forged, err := core.Seal(nil, newPad(t), time.Now())
	require.NoError(t, err)
	require.Len(t, forged, core.MinDatagram)
	h.sendRaw(forged)

	// none of them may trigger a status reply or a rebuild
	h.send([]byte("still here"))
	assert.Equal(t, "still here", h.message().Text)
	h.expectStatus(core.StatusAck)
	h.noRebuild()
}

func TestUnknownStatusIgnored(t *testing.T) {
	h := start(t, nil)
	h.subscribe()
	h.session()

	h.status(0x42)
	assert.Equal(t, core.Status(0x42), <-h.statuses)
	h.send([]byte("next"))
	assert.Equal(t, "next", h.message().Text)
	h.expectStatus(core.StatusAck)
}

func TestForgedMessageRebuilds(t *testing.T) {
	h := start(t, nil)
	h.subscribe()
	h.session()

	other := newPad(t)
	forged, err := core.Seal([]byte("forged"), other, time.Now())
	require.NoError(t, err)
	h.sendRaw(forged)

	h.expectStatus(core.StatusInvalid)
	h.expectAuth()
	h.noMessages()
}

func TestUnexpectedSenderIgnored(t *testing.T) {
	h := start(t, nil)
	client := h.subscribe()
	h.session()

	stranger := newRelay(t, h.pad)
	stranger.client = client
	stranger.send([]byte("from a stranger"))

	h.send([]byte("from the server"))
	assert.Equal(t, "from the server", h.message().Text)
	h.noMessages()
}

func TestReplayAcrossRebuild(t *testing.T) {
	h := start(t, func(cfg *Config) {
		cfg.ReplayFilter = internal.NewBloomRing(internal.DefaultSFSlot, 1000, internal.DefaultSFFPR)
	})
	h.subscribe()
	h.session()

	pkt := h.send([]byte("transfer"))
	assert.Equal(t, "transfer", h.message().Text)
	h.expectStatus(core.StatusAck)

	h.status(core.StatusEndOfMedium)
	h.subscribe()
	h.session()

	h.sendRaw(pkt)
	h.send([]byte("fresh"))
	assert.Equal(t, "fresh", h.message().Text)
	h.noMessages()
}

func TestTamperedReplayRebuilds(t *testing.T) {
	h := start(t, func(cfg *Config) {
		cfg.ReplayFilter = internal.NewBloomRing(internal.DefaultSFSlot, 1000, internal.DefaultSFFPR)
	})
	h.subscribe()
	h.session()

	pkt := h.send([]byte("reading"))
	assert.Equal(t, "reading", h.message().Text)
	h.expectStatus(core.StatusAck)

	// known nonce, altered ciphertext: a forgery, not a replay
	bad := append([]byte(nil), pkt...)
	bad[0] ^= 1
	h.sendRaw(bad)

	h.expectStatus(core.StatusInvalid)
	h.expectAuth()
	h.noMessages()
}

func TestPadReadFailureKeepsSession(t *testing.T) {
	b := randomBytes(t, 1<<14)
	flaky := &flakyReader{r: bytes.NewReader(b)}
	h := startWith(t, padFrom(t, bytes.NewReader(b), len(b)), func(cfg *Config) {
		cfg.Pad = padFrom(t, flaky, len(b))
	})
	h.subscribe()
	h.session()

	flaky.failures.Store(1)
	h.send([]byte("unreadable"))
	h.expectStatus(core.StatusDecryptFailed)

	h.send([]byte("readable"))
	assert.Equal(t, "readable", h.message().Text)
	h.expectStatus(core.StatusAck)
	h.noMessages()
	h.noRebuild()
}

func TestAuthPadReadFailureResends(t *testing.T) {
	b := randomBytes(t, 1<<14)
	flaky := &flakyReader{r: bytes.NewReader(b)}
	h := startWith(t, padFrom(t, bytes.NewReader(b), len(b)), func(cfg *Config) {
		cfg.Pad = padFrom(t, flaky, len(b))
	})

	h.expectAuth()
	flaky.failures.Store(1)
	h.status(core.StatusSubscribed)

	h.subscribe()
	h.session()
}

func TestSessionIDLogged(t *testing.T) {
	var (
		mu   sync.Mutex
		logs []string
	)
	h := start(t, func(cfg *Config) {
		cfg.Logf = func(format string, v ...interface{}) {
			mu.Lock()
			defer mu.Unlock()
			logs = append(logs, fmt.Sprintf(format, v...))
		}
	})
	logged := func(id uuid.UUID, prefix string) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range logs {
			if strings.HasPrefix(l, prefix) && strings.Contains(l, id.String()) {
				return true
			}
		}
		return false
	}

	h.subscribe()
	s1 := h.session()
	assert.True(t, logged(s1.ID(), "Subscribed to server"))

	h.status(core.StatusEndOfMedium)
	h.subscribe()
	s2 := h.session()
	assert.True(t, logged(s1.ID(), "Subscription expiration"))
	assert.True(t, logged(s2.ID(), "Subscribed to server"))
}

func TestAuthRejectedThenAccepted(t *testing.T) {
	h := start(t, nil)

	h.expectAuth()
	h.status(core.StatusEndOfMedium)

	h.expectAuth()
	h.status(0x7f) // unknown: keep polling
	h.status(core.StatusSubscribed)
	h.session()
}

func TestAuthWrongPadRetries(t *testing.T) {
	h := start(t, nil)

	h.expectAuth()
	bad, err := core.Seal([]byte{byte(core.StatusSubscribed)}, newPad(t), time.Now())
	require.NoError(t, err)
	h.sendRaw(bad)

	h.subscribe()
	h.session()
}

func TestAuthResendsAfterSilence(t *testing.T) {
	h := start(t, nil)

	h.expectAuth()
	h.expectAuth() // ten polls without an answer
	h.status(core.StatusSubscribed)
	h.session()
}

func TestAuthIgnoresWrongLength(t *testing.T) {
	h := start(t, nil)

	h.expectAuth()
	h.send([]byte("not a status"))
	h.status(core.StatusSubscribed)
	h.session()
}

func TestTickAndSessionSend(t *testing.T) {
	var once sync.Once
	h := start(t, func(cfg *Config) {
		cfg.OnTick = func(s *Session) {
			once.Do(func() { s.Send([]byte("tick")) })
		}
	})
	h.subscribe()
	h.session()
	assert.Equal(t, []byte("tick"), h.recv())
}

func TestBindFailure(t *testing.T) {
	busy, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer busy.Close()

	c := New(Config{
		Peer:      netip.MustParseAddrPort("127.0.0.1:3840"),
		LocalPort: busy.LocalAddr().(*net.UDPAddr).Port,
		Pad:       newPad(t),
	})
	err = c.Run(context.Background())
	var be *BindError
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, busy.LocalAddr().(*net.UDPAddr).Port, be.Port)
}

func TestRunStopsOnCancel(t *testing.T) {
	pad := newPad(t)
	r := newRelay(t, pad)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(Config{Peer: r.addr(), Pad: pad}).Run(ctx) }()

	r.expectAuth()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}
