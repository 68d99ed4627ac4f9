package internal

import (
	"hash/fnv"

	"github.com/riobard/go-bloom"
)

// Defaults for the nonce replay filter.
const (
	DefaultSFCapacity = 1e6  // nonces remembered across all slots
	DefaultSFFPR      = 1e-6 // false positive rate
	DefaultSFSlot     = 10   // a full slot recycles the oldest
)

// simply use Double FNV here as our Bloom Filter hash
func doubleFNV(b []byte) (uint64, uint64) {
	hx := fnv.New64()
	hx.Write(b)
	x := hx.Sum64()
	hy := fnv.New64a()
	hy.Write(b)
	y := hy.Sum64()
	return x, y
}

// BloomRing remembers recently seen nonces in a ring of Bloom filters. When
// the current slot fills up the ring advances and clears the oldest slot, so
// memory stays fixed while old entries age out.
//
// BloomRing is not safe for concurrent use.
type BloomRing struct {
	slotCapacity int
	slotPosition int
	slotCount    int
	entryCounter int
	slots        []bloom.Filter
}

// NewBloomRing returns a ring of slot filters sharing capacity entries, or
// nil if capacity or slot is not positive. A nil ring remembers nothing.
func NewBloomRing(slot, capacity int, falsePositiveRate float64) *BloomRing {
	if slot <= 0 || capacity <= 0 {
		return nil
	}
	r := &BloomRing{
		slotCapacity: capacity / slot,
		slotCount:    slot,
		slots:        make([]bloom.Filter, slot),
	}
	if r.slotCapacity == 0 {
		r.slotCapacity = 1
	}
	for i := 0; i < slot; i++ {
		r.slots[i] = bloom.New(r.slotCapacity, falsePositiveRate, doubleFNV)
	}
	return r
}

// Add records b.
func (r *BloomRing) Add(b []byte) {
	if r == nil {
		return
	}
	slot := r.slots[r.slotPosition]
	if r.entryCounter >= r.slotCapacity {
		r.slotPosition = (r.slotPosition + 1) % r.slotCount
		slot = r.slots[r.slotPosition]
		slot.Reset()
		r.entryCounter = 0
	}
	r.entryCounter++
	slot.Add(b)
}

// Test reports whether b was probably added before.
func (r *BloomRing) Test(b []byte) bool {
	if r == nil {
		return false
	}
	for _, s := range r.slots {
		if s.Test(b) {
			return true
		}
	}
	return false
}
