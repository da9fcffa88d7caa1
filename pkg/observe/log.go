package observe

import (
	"context"
	"log/slog"

	events "github.com/docker/go-events"
)

// LogSink writes events to a slog logger. Per-segment events go out at
// debug level, congestion and loss events at info.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ev events.Event) error {
	e, ok := ev.(Event)
	if !ok {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	switch e.Kind {
	case Timeout, FastRetransmit, Stalled, Completed:
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{slog.Uint64("seq", uint64(e.Seq))}
	switch e.Kind {
	case SegmentSent, SegmentAcked, Retransmission:
		attrs = append(attrs, slog.Int("len", e.Len))
	case RTOChanged, Timeout:
		attrs = append(attrs, slog.Duration("rto", e.RTO))
	case CwndChanged, FastRetransmit:
		attrs = append(attrs,
			slog.Uint64("cwnd", uint64(e.Cwnd)),
			slog.Uint64("ssthresh", uint64(e.SSThresh)),
			slog.String("phase", e.Phase))
	}
	logger.LogAttrs(context.Background(), level, e.Kind.String(), attrs...)
	return nil
}

func (s LogSink) Close() error { return nil }
