package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/TeoSlayer/sackudp/internal/fsutil"
	"github.com/TeoSlayer/sackudp/pkg/transport"
)

var (
	fetchServer string
	fetchListen string
	fetchOut    string
	fetchFlags  transportFlags
)

func init() {
	fs := fetchCmd.Flags()
	fs.StringVar(&fetchServer, "server", "127.0.0.1:9000", "server UDP address")
	fs.StringVar(&fetchListen, "listen", ":0", "local UDP address")
	fs.StringVar(&fetchOut, "out", "received.bin", "output file")
	fetchFlags.register(fs)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Request a file from a server and write it to disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := net.ResolveUDPAddr("udp", fetchServer)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", fetchServer)
		}

		hub, stop, err := observers()
		if err != nil {
			return err
		}
		defer stop()

		cfg, err := fetchFlags.config(hub)
		if err != nil {
			return err
		}
		s, err := transport.Listen(fetchListen, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		res, err := s.Fetch(ctx, server)
		if err != nil {
			var stalled *transport.StalledError
			if errors.As(err, &stalled) && len(stalled.Partial) > 0 {
				if werr := fsutil.AtomicWrite(fetchOut, stalled.Partial, 0644); werr != nil {
					slog.Error("saving partial output", "error", werr)
				} else {
					slog.Warn("saved partial output", "path", fetchOut, "bytes", len(stalled.Partial))
				}
			}
			return err
		}
		return fsutil.AtomicWrite(fetchOut, res.Data, 0644)
	},
}
