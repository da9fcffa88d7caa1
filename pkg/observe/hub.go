package observe

import (
	"io"
	"log/slog"

	events "github.com/docker/go-events"
)

// Hub fans events out to any number of sinks. Each sink sits behind its own
// unbounded queue, so a slow sink only delays itself.
type Hub struct {
	bc  *events.Broadcaster
	log *slog.Logger
}

var _ Observer = &Hub{}

// NewHub creates a hub with the given sinks attached. Events the hub cannot
// deliver are reported to logger at debug level; a nil logger discards them.
func NewHub(logger *slog.Logger, sinks ...events.Sink) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Hub{bc: events.NewBroadcaster(), log: logger}
	for _, s := range sinks {
		h.Add(s)
	}
	return h
}

// Add attaches a sink.
func (h *Hub) Add(s events.Sink) error {
	return h.bc.Add(events.NewQueue(s))
}

// Observe implements Observer.
func (h *Hub) Observe(e Event) {
	if err := h.bc.Write(e); err != nil {
		h.log.Debug("observe: dropped event", "kind", e.Kind, "error", err)
	}
}

// Close flushes and closes every attached sink.
func (h *Hub) Close() error {
	return h.bc.Close()
}

// Only restricts a sink to the listed kinds.
func Only(s events.Sink, kinds ...Kind) events.Sink {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	return events.NewFilter(s, events.MatcherFunc(func(ev events.Event) bool {
		e, ok := ev.(Event)
		return ok && want[e.Kind]
	}))
}

// ObserverSink forwards events from a go-events pipeline to an Observer.
type ObserverSink struct {
	Observer Observer
}

func (s ObserverSink) Write(ev events.Event) error {
	if e, ok := ev.(Event); ok {
		s.Observer.Observe(e)
	}
	return nil
}

func (s ObserverSink) Close() error { return nil }
