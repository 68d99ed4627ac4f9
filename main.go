package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/teamech/go-teamech/client"
	"github.com/teamech/go-teamech/internal"
	"github.com/teamech/go-teamech/shadowpad"
)

func logf(f string, v ...interface{}) {
	if config.Verbose {
		log.Printf(f, v...)
	}
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	config = cfg

	if config.Keygen > 0 {
		if err := writePad(config.Pad, config.Keygen); err != nil {
			log.Fatal(err)
		}
		return
	}

	if config.Remote == "" || config.Pad == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	peer, err := resolve(config.Remote)
	if err != nil {
		log.Fatalf("Could not parse %q as an IP address or hostname: %v", config.Remote, err)
	}

	pad, err := shadowpad.OpenPad(config.Pad)
	if err != nil {
		log.Fatalf("Could not open pad file: %v", err)
	}
	defer pad.Close()

	var ring *internal.BloomRing
	if config.Bloom {
		ring = internal.NewBloomRing(internal.DefaultSFSlot, int(internal.DefaultSFCapacity), internal.DefaultSFFPR)
	}

	c := client.New(client.Config{
		Peer:         peer,
		LocalPort:    config.Port,
		Pad:          pad,
		RetryDelay:   config.Retry,
		Tolerance:    config.Tolerance,
		ReplayFilter: ring,
		OnMessage:    showMessage,
		OnStatus:     showStatus,
		Reply:        reply(helloWorld),
		Logf:         log.Printf,
		Debugf:       logf,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var be *client.BindError
	if err := c.Run(ctx); errors.As(err, &be) {
		log.Fatalf("Could not bind to local address: %v", be.Err)
	}
}

// resolve returns the first address host:port resolves to.
func resolve(hostport string) (netip.AddrPort, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// writePad creates a new pad of n random bytes. It never overwrites.
func writePad(path string, n int) error {
	if path == "" {
		return errors.New("no pad path given")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := copyRandom(f, n); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
