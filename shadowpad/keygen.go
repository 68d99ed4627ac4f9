package shadowpad

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

const (
	// NonceSize is the size of the cleartext nonce trailing every packet.
	NonceSize = 8

	// SeedSize is the size of the secret seed derived from a nonce.
	SeedSize = 8

	// SignatureSize is the size of the encrypted signature.
	SignatureSize = 8

	// Overhead is the number of bytes a packet adds to its payload.
	Overhead = SignatureSize + NonceSize
)

// chain fills out with pad bytes. Round x hashes head, the previous truncated
// hash and, from the second round on, the previously extracted byte.
func chain(head [8]byte, pad *Pad, out []byte) error {
	h := sha3.New256()
	sum := make([]byte, 0, h.Size())
	running := head
	for x := range out {
		h.Reset()
		h.Write(head[:])
		h.Write(running[:])
		if x >= 1 {
			h.Write(out[x-1 : x])
		}
		sum = h.Sum(sum[:0])
		copy(running[:], sum[:8])

		b, err := pad.at(binary.BigEndian.Uint64(running[:]))
		if err != nil {
			return err
		}
		out[x] = b
	}
	return nil
}

// Keygen derives the secret seed for nonce and an n-byte single-use key from
// pad. It is a pure function of its arguments.
func Keygen(nonce [NonceSize]byte, pad *Pad, n int) (key []byte, seed [SeedSize]byte, err error) {
	if err = chain(nonce, pad, seed[:]); err != nil {
		return nil, seed, err
	}
	key = make([]byte, n)
	if err = chain(seed, pad, key); err != nil {
		return nil, seed, err
	}
	return key, seed, nil
}

// sign returns the signature binding seed, plaintext and key.
func sign(seed [SeedSize]byte, plaintext, key []byte) [SignatureSize]byte {
	h := sha3.New256()
	h.Write(seed[:])
	h.Write(plaintext)
	h.Write(key)
	var sig [SignatureSize]byte
	copy(sig[:], h.Sum(nil))
	return sig
}
