package shadowpad

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
)

// ErrShortPacket means that the packet is too short for a valid encrypted packet.
var ErrShortPacket = errors.New("shadowpad: short packet")

// ErrInvalidSignature means the packet did not verify against the pad: it was
// tampered with or sealed with a different pad.
var ErrInvalidSignature = errors.New("shadowpad: invalid signature")

// IsInvalid reports whether err says the packet failed verification, as
// opposed to failing for I/O reasons.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalidSignature) }

// Pack encrypts plaintext using pad with a randomly generated nonce and
// returns a slice of dst containing the encrypted packet and any error occurred.
// Ensure len(dst) >= len(plaintext) + Overhead.
func Pack(dst, plaintext []byte, pad *Pad) ([]byte, error) {
	n := len(plaintext) + SignatureSize
	if len(dst) < n+NonceSize {
		return nil, io.ErrShortBuffer
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	key, seed, err := Keygen(nonce, pad, n)
	if err != nil {
		return nil, err
	}
	sig := sign(seed, plaintext, key)

	copy(dst, plaintext)
	copy(dst[len(plaintext):], sig[:])
	subtle.XORBytes(dst[:n], dst[:n], key)
	copy(dst[n:], nonce[:])
	return dst[:n+NonceSize], nil
}

// Unpack decrypts pkt using pad and returns a slice of dst containing the
// verified payload and any error occurred.
// Ensure len(dst) >= len(pkt) - Overhead.
func Unpack(dst, pkt []byte, pad *Pad) ([]byte, error) {
	if len(pkt) < Overhead {
		return nil, ErrShortPacket
	}
	n := len(pkt) - NonceSize
	if len(dst) < n-SignatureSize {
		return nil, io.ErrShortBuffer
	}

	var nonce [NonceSize]byte
	copy(nonce[:], pkt[n:])
	key, seed, err := Keygen(nonce, pad, n)
	if err != nil {
		return nil, err
	}

	combined := make([]byte, n)
	subtle.XORBytes(combined, pkt[:n], key)
	plaintext := combined[:n-SignatureSize]
	want := sign(seed, plaintext, key)
	if subtle.ConstantTimeCompare(combined[n-SignatureSize:], want[:]) != 1 {
		return nil, ErrInvalidSignature
	}
	return dst[:copy(dst, plaintext)], nil
}
