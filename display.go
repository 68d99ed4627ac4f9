package main

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/teamech/go-teamech/client"
	"github.com/teamech/go-teamech/core"
)

// hexdump renders b as space separated lower-case hex bytes.
func hexdump(b []byte) string { return fmt.Sprintf("% x", b) }

func formatLine(tag, text string, b []byte) string {
	if config.ShowHex {
		return fmt.Sprintf("[%s]: %s [%s]", tag, text, hexdump(b))
	}
	return fmt.Sprintf("[%s]: %s", tag, text)
}

func showMessage(m client.Message) {
	fmt.Printf("\r%s\n", formatLine("REM", m.Text, m.Content))
}

func showStatus(st core.Status) {
	fmt.Printf("\r[SRV]: 0x%02x (%s)\n", byte(st), st)
}

func copyRandom(w io.Writer, n int) error {
	_, err := io.CopyN(w, rand.Reader, int64(n))
	return err
}
