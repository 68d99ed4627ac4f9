package shadowpad

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmptyPad means the pad has no bytes to index into.
var ErrEmptyPad = errors.New("shadowpad: empty pad")

// ErrPadRead means a pad byte could not be read.
var ErrPadRead = errors.New("shadowpad: pad read failed")

// Pad is a read-only view of a shared pad. It is never written.
type Pad struct {
	r    io.ReaderAt
	size int64
	c    io.Closer
}

// OpenPad opens the pad file at path and keeps it open until Close.
//
// The size comes from the file metadata, so a block device used as a pad
// reports zero and is rejected.
func OpenPad(path string) (*Pad, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrEmptyPad, path)
	}
	return &Pad{r: f, size: fi.Size(), c: f}, nil
}

// NewPad wraps r as a pad of the given size.
func NewPad(r io.ReaderAt, size int64) (*Pad, error) {
	if size <= 0 {
		return nil, ErrEmptyPad
	}
	return &Pad{r: r, size: size}, nil
}

// Size returns the pad length in bytes.
func (p *Pad) Size() int64 { return p.size }

// Close releases the underlying file, if any.
func (p *Pad) Close() error {
	if p.c == nil {
		return nil
	}
	return p.c.Close()
}

// at returns the pad byte selected by index modulo the pad size.
func (p *Pad) at(index uint64) (byte, error) {
	var b [1]byte
	off := int64(index % uint64(p.size))
	n, err := p.r.ReadAt(b[:], off)
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return 0, fmt.Errorf("%w at offset %d: %v", ErrPadRead, off, err)
}
