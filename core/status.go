package core

import "fmt"

// Status is a single-byte control code carried as the whole content of a
// control datagram.
type Status byte

const (
	StatusSubscribed    Status = 0x02 // subscription accepted
	StatusAck           Status = 0x06 // message received
	StatusInvalid       Status = 0x15 // message failed to validate
	StatusEndOfMedium   Status = 0x19 // rejected, or subscription expired
	StatusDecryptFailed Status = 0x1A // message could not be decrypted
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusAck:
		return "ack"
	case StatusInvalid:
		return "invalid"
	case StatusEndOfMedium:
		return "end of medium"
	case StatusDecryptFailed:
		return "decrypt failed"
	}
	return fmt.Sprintf("0x%02x", byte(s))
}

// Datagram sizes.
const (
	// MinDatagram is an empty payload plus timestamp, signature and nonce.
	MinDatagram = 24

	// ControlDatagram carries exactly one status byte.
	ControlDatagram = MinDatagram + 1

	// MaxDatagram bounds receive buffers.
	MaxDatagram = 64 * 1024
)

// Class groups datagrams by length before any decryption is attempted.
type Class int

const (
	ClassShort   Class = iota // cannot be valid
	ClassControl              // empty or single status byte
	ClassMessage              // application content
)

// Classify returns the class of a datagram of n bytes.
func Classify(n int) Class {
	switch {
	case n < MinDatagram:
		return ClassShort
	case n <= ControlDatagram:
		return ClassControl
	}
	return ClassMessage
}
