package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/TeoSlayer/sackudp/pkg/config"
	"github.com/TeoSlayer/sackudp/pkg/congestion"
	"github.com/TeoSlayer/sackudp/pkg/logging"
	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/transport"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	tracePath   string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to config file (YAML or JSON)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	pf.StringVar(&tracePath, "trace", "", "write a JSON-lines event trace to this file")

	rootCmd.AddCommand(serveCmd, fetchCmd, loopbackCmd)
}

var rootCmd = &cobra.Command{
	Use:           "sackudp",
	Short:         "Reliable bulk transfer over UDP with selective acknowledgements",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := config.ApplyToFlags(cmd.Flags(), cfg); err != nil {
				return err
			}
		}
		_, err := logging.Setup(logLevel, logFormat)
		return err
	},
}

// transportFlags are the session tunables shared by every subcommand.
type transportFlags struct {
	algorithm         string
	window            uint32
	initialWindow     uint32
	initialRTO        time.Duration
	minRTO            time.Duration
	maxRTO            time.Duration
	backoffFactor     float64
	maxRetransmits    int
	eofPolicy         string
	handshakeAttempts int
	handshakeInterval time.Duration
	acceptTimeout     time.Duration
	idleTimeout       time.Duration
	maxStalls         int
	tos               int
}

func (f *transportFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.algorithm, "cc", "cubic", "congestion control (fixed, aimd, cubic)")
	fs.Uint32Var(&f.window, "window", 0, "window ceiling in bytes, or the fixed window (default 512 MSS)")
	fs.Uint32Var(&f.initialWindow, "initial-window", 0, "initial congestion window in bytes (default 1 MSS)")
	fs.DurationVar(&f.initialRTO, "initial-rto", 0, "initial retransmission timeout (default 150ms)")
	fs.DurationVar(&f.minRTO, "min-rto", 0, "minimum retransmission timeout (default 40ms)")
	fs.DurationVar(&f.maxRTO, "max-rto", 0, "maximum retransmission timeout (default 3s)")
	fs.Float64Var(&f.backoffFactor, "backoff", 0, "RTO backoff factor on timeout (default 2)")
	fs.IntVar(&f.maxRetransmits, "max-retransmits", 0, "per-segment retransmission budget (default 8)")
	fs.StringVar(&f.eofPolicy, "eof-policy", "best-effort", "end of stream handling (best-effort, await-ack)")
	fs.IntVar(&f.handshakeAttempts, "handshake-attempts", 0, "transfer requests before giving up (default 5)")
	fs.DurationVar(&f.handshakeInterval, "handshake-interval", 0, "wait for the server per request (default 2s)")
	fs.DurationVar(&f.acceptTimeout, "accept-timeout", 0, "server wait for a request, 0 waits forever")
	fs.DurationVar(&f.idleTimeout, "idle-timeout", 0, "receiver wait before re-acking (default 1s)")
	fs.IntVar(&f.maxStalls, "max-stalls", 0, "consecutive receiver timeouts before giving up (default 8)")
	fs.IntVar(&f.tos, "tos", 0, "IP TOS / traffic class for outgoing datagrams")
}

func (f *transportFlags) config(obs observe.Observer) (transport.Config, error) {
	algo, err := congestion.ParseAlgorithm(f.algorithm)
	if err != nil {
		return transport.Config{}, err
	}
	policy, err := transport.ParseEOFPolicy(f.eofPolicy)
	if err != nil {
		return transport.Config{}, err
	}
	return transport.Config{
		Algorithm:         algo,
		Window:            f.window,
		InitialWindow:     f.initialWindow,
		InitialRTO:        f.initialRTO,
		MinRTO:            f.minRTO,
		MaxRTO:            f.maxRTO,
		BackoffFactor:     f.backoffFactor,
		MaxRetransmits:    f.maxRetransmits,
		EOFPolicy:         policy,
		HandshakeAttempts: f.handshakeAttempts,
		HandshakeInterval: f.handshakeInterval,
		AcceptTimeout:     f.acceptTimeout,
		IdleTimeout:       f.idleTimeout,
		MaxStalls:         f.maxStalls,
		TOS:               f.tos,
		Observer:          obs,
		Logger:            slog.Default(),
	}, nil
}

// observers wires the configured event sinks into a hub. The returned
// function closes the hub and any metrics listener.
func observers() (*observe.Hub, func(), error) {
	hub := observe.NewHub(slog.Default(), observe.LogSink{Logger: slog.Default()})
	var stopMetrics func()

	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			hub.Close()
			return nil, nil, errors.Wrap(err, "open trace file")
		}
		hub.Add(observe.NewTraceSink(f))
	}
	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr)
		if err != nil {
			hub.Close()
			return nil, nil, err
		}
		stopMetrics = stop
		hub.Add(observe.MetricsSink{})
	}

	return hub, func() {
		if err := hub.Close(); err != nil {
			slog.Warn("closing event sinks", "error", err)
		}
		if stopMetrics != nil {
			stopMetrics()
		}
	}, nil
}
