package metricsvc

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/chuo/core/notification"
)

const namespace = "chuo"

// Collectors are the notification delivery metrics, shared by the instrumented sinks.
type Collectors struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollectors registers the delivery metrics on reg.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by sink, type and outcome.",
		}, []string{"sink", "type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering a notification to a sink.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
	}
	for _, col := range []prometheus.Collector{c.deliveries, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Deliveries returns the counter of the given labels.
func (c *Collectors) Deliveries(sink string, typ notification.Type, outcome string) prometheus.Counter {
	return c.deliveries.WithLabelValues(sink, string(typ), outcome)
}

// InstrumentedSink counts and times the deliveries of the sink it wraps.
type InstrumentedSink struct {
	next notification.Sink
	col  *Collectors
}

var _ notification.Sink = (*InstrumentedSink)(nil) // interface compliance check

func Instrument(next notification.Sink, col *Collectors) *InstrumentedSink {
	return &InstrumentedSink{next: next, col: col}
}

func (s *InstrumentedSink) Name() string { return s.next.Name() }

func (s *InstrumentedSink) Deliver(ctx context.Context, p notification.Payload) error {
	start := time.Now()
	err := s.next.Deliver(ctx, p)
	s.col.duration.WithLabelValues(s.next.Name()).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.col.Deliveries(s.next.Name(), p.Type, outcome).Inc()
	return err
}
