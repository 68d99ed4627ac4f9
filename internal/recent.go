package internal

import "bytes"

// DefaultRecentSize is how many datagrams RecentSet remembers.
const DefaultRecentSize = 32

// RecentSet is an exact, bounded first-in first-out set of raw datagrams.
// Once it holds more than its size the oldest entry is dropped.
type RecentSet struct {
	size    int
	entries [][]byte
}

// NewRecentSet returns an empty set holding at most size entries.
func NewRecentSet(size int) *RecentSet {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &RecentSet{size: size, entries: make([][]byte, 0, size+1)}
}

// Seen reports whether b is byte-for-byte equal to a remembered datagram.
func (s *RecentSet) Seen(b []byte) bool {
	for _, e := range s.entries {
		if bytes.Equal(e, b) {
			return true
		}
	}
	return false
}

// Add remembers a copy of b, evicting the oldest entry if the set overflows.
func (s *RecentSet) Add(b []byte) {
	s.entries = append(s.entries, append([]byte(nil), b...))
	if len(s.entries) > s.size {
		copy(s.entries, s.entries[1:])
		s.entries[len(s.entries)-1] = nil
		s.entries = s.entries[:len(s.entries)-1]
	}
}

// Len returns the number of remembered datagrams.
func (s *RecentSet) Len() int { return len(s.entries) }

// Reset forgets everything.
func (s *RecentSet) Reset() {
	for i := range s.entries {
		s.entries[i] = nil
	}
	s.entries = s.entries[:0]
}
