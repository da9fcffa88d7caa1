package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TeoSlayer/sackudp/internal/lossy"
	"github.com/TeoSlayer/sackudp/pkg/transport"
)

var (
	loopbackFile  string
	loopbackSize  int
	loopbackFlags transportFlags
	loopbackLoss  lossy.Profile
)

func init() {
	fs := loopbackCmd.Flags()
	fs.StringVar(&loopbackFile, "file", "", "file to transfer (default random data)")
	fs.IntVar(&loopbackSize, "size", 1<<20, "random payload size when --file is unset")
	fs.Float64Var(&loopbackLoss.Drop, "drop", 0, "probability of dropping a datagram")
	fs.Float64Var(&loopbackLoss.Duplicate, "dup", 0, "probability of duplicating a datagram")
	fs.Float64Var(&loopbackLoss.Reorder, "reorder", 0, "probability of delaying a datagram behind the next")
	fs.Int64Var(&loopbackLoss.Seed, "seed", 1, "loss injection seed")
	loopbackFlags.register(fs)
}

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Run sender and receiver in-process over loopback UDP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loopbackPayload()
		if err != nil {
			return err
		}

		hub, stop, err := observers()
		if err != nil {
			return err
		}
		defer stop()

		cfg, err := loopbackFlags.config(hub)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runLoopback(ctx, data, cfg, loopbackLoss)
	},
}

func loopbackPayload() ([]byte, error) {
	if loopbackFile != "" {
		b, err := os.ReadFile(loopbackFile)
		return b, errors.Wrap(err, "read input")
	}
	b := make([]byte, loopbackSize)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b, nil
}

// runLoopback transfers data between two sessions on 127.0.0.1. Both
// directions are impaired by p.
func runLoopback(ctx context.Context, data []byte, cfg transport.Config, p lossy.Profile) error {
	open := func(seed int64) (net.PacketConn, *lossy.Conn, error) {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			return nil, nil, errors.Wrap(err, "listen")
		}
		if !p.Active() {
			return conn, nil, nil
		}
		prof := p
		prof.Seed = seed
		lc := lossy.Wrap(conn, prof)
		return lc, lc, nil
	}

	serverConn, serverLossy, err := open(p.Seed)
	if err != nil {
		return err
	}
	clientConn, clientLossy, err := open(p.Seed + 1)
	if err != nil {
		serverConn.Close()
		return err
	}
	server := transport.NewSession(serverConn, cfg)
	client := transport.NewSession(clientConn, cfg)

	var got []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := server.Serve(gctx, data)
		return errors.Wrap(err, "sender")
	})
	g.Go(func() error {
		res, err := client.Fetch(gctx, server.Addr())
		got = res.Data
		return errors.Wrap(err, "receiver")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if serverLossy != nil {
		slog.Info("sender link impairment", "counters", serverLossy.Counters())
	}
	if clientLossy != nil {
		slog.Info("receiver link impairment", "counters", clientLossy.Counters())
	}
	if !bytes.Equal(got, data) {
		return errors.Errorf("received %d bytes that differ from the %d sent", len(got), len(data))
	}
	slog.Info("loopback transfer verified", "bytes", len(data))
	return nil
}
