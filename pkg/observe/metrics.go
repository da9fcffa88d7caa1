package observe

import (
	"sync"

	events "github.com/docker/go-events"
	metrics "github.com/docker/go-metrics"
)

// NamespacePrefix is the namespace of every exported metric.
const NamespacePrefix = "sackudp"

var (
	// TransportNamespace is the prometheus namespace of transport metrics.
	TransportNamespace = metrics.NewNamespace(NamespacePrefix, "transport", nil)

	segmentCounter = TransportNamespace.NewLabeledCounter("segments", "The number of segment events by kind", "kind")
	rtoGauge       = TransportNamespace.NewGauge("rto", "The current retransmission timeout", metrics.Seconds)
	cwndGauge      = TransportNamespace.NewGauge("cwnd", "The current congestion window", metrics.Bytes)
	ssthreshGauge  = TransportNamespace.NewGauge("ssthresh", "The current slow start threshold", metrics.Bytes)
	transferTimer  = TransportNamespace.NewTimer("transfer", "The time taken by finished transfers")

	registerOnce sync.Once
)

// RegisterMetrics registers the transport namespace with the default
// prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		metrics.Register(TransportNamespace)
	})
}

// MetricsSink updates prometheus collectors from events.
type MetricsSink struct{}

func (MetricsSink) Write(ev events.Event) error {
	e, ok := ev.(Event)
	if !ok {
		return nil
	}
	switch e.Kind {
	case RTOChanged:
		rtoGauge.Set(e.RTO.Seconds())
	case CwndChanged:
		cwndGauge.Set(float64(e.Cwnd))
		ssthreshGauge.Set(float64(e.SSThresh))
	case Completed, Stalled:
		transferTimer.Update(e.Elapsed)
		segmentCounter.WithValues(e.Kind.String()).Inc(1)
	default:
		segmentCounter.WithValues(e.Kind.String()).Inc(1)
	}
	return nil
}

func (MetricsSink) Close() error { return nil }
