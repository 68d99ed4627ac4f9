package core

import (
	"encoding/binary"
	"errors"
	"time"
)

// TimestampSize is the size of the send time appended to every payload.
const TimestampSize = 8

// DefaultTolerance is how far a send time may lie from the local clock.
const DefaultTolerance = 10 * time.Second

// ErrShortEnvelope means a decrypted payload has no room for its timestamp.
var ErrShortEnvelope = errors.New("core: short envelope")

// Stamp returns payload followed by t in big-endian milliseconds since the epoch.
func Stamp(payload []byte, t time.Time) []byte {
	b := make([]byte, len(payload)+TimestampSize)
	copy(b, payload)
	binary.BigEndian.PutUint64(b[len(payload):], uint64(t.UnixMilli()))
	return b
}

// SplitEnvelope separates a decrypted payload into its content and send time.
func SplitEnvelope(env []byte) (content []byte, sent time.Time, err error) {
	if len(env) < TimestampSize {
		return nil, time.Time{}, ErrShortEnvelope
	}
	n := len(env) - TimestampSize
	ms := int64(binary.BigEndian.Uint64(env[n:]))
	return env[:n], time.UnixMilli(ms), nil
}

// Fresh reports whether sent lies within tolerance of now, compared at
// millisecond resolution.
func Fresh(sent, now time.Time, tolerance time.Duration) bool {
	d := now.UnixMilli() - sent.UnixMilli()
	tol := tolerance.Milliseconds()
	return d <= tol && -d <= tol
}
