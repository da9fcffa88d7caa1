package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/TeoSlayer/sackudp/pkg/sender"
	"github.com/TeoSlayer/sackudp/pkg/transport"
)

var (
	serveListen string
	serveFile   string
	serveFlags  transportFlags
)

func init() {
	fs := serveCmd.Flags()
	fs.StringVar(&serveListen, "listen", ":9000", "UDP listen address")
	fs.StringVar(&serveFile, "file", "", "file to send (required)")
	serveFlags.register(fs)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Send a file to the first client that requests it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveFile == "" {
			return errors.New("--file is required")
		}
		data, err := os.ReadFile(serveFile)
		if err != nil {
			return errors.Wrap(err, "read input")
		}
		if err := sender.CheckLength(len(data)); err != nil {
			return errors.Wrap(err, serveFile)
		}

		hub, stop, err := observers()
		if err != nil {
			return err
		}
		defer stop()

		cfg, err := serveFlags.config(hub)
		if err != nil {
			return err
		}
		s, err := transport.Listen(serveListen, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		_, err = s.Serve(ctx, data)
		return err
	},
}
