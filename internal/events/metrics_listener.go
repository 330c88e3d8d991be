package events

import (
	"context"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsEventListener consumes a ChannelEventBus and counts events in
// Prometheus, labelled by event type, plus failure hooks by task family.
type MetricsEventListener struct {
	bus         *ChannelEventBus
	log         tglog.Logger
	eventsTotal *prometheus.CounterVec
	hooksFired  *prometheus.CounterVec
}

// NewMetricsEventListener registers the listener's collectors with reg.
func NewMetricsEventListener(bus *ChannelEventBus, reg prometheus.Registerer, log tglog.Logger) (*MetricsEventListener, error) {
	l := &MetricsEventListener{
		bus: bus,
		log: log.With("component", "MetricsEventListener"),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "taskgraph_events_total", Help: "Engine events observed, by type."},
			[]string{"type"},
		),
		hooksFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "taskgraph_failure_hooks_fired_total", Help: "Failure hooks invoked, by task family."},
			[]string{"family"},
		),
	}
	for _, c := range []prometheus.Collector{l.eventsTotal, l.hooksFired} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Start consumes events until the bus is closed or ctx is done. It blocks;
// run it in its own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-l.bus.Channel():
			if !ok {
				l.log.Debugf("Event bus closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	l.eventsTotal.WithLabelValues(string(event.Type)).Inc()
	if event.Type == events.FailureHookFired {
		l.hooksFired.WithLabelValues(event.Family).Inc()
	}
}
