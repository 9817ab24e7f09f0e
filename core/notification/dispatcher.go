package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

type (
	// Sink is one delivery channel of the fan-out.
	Sink interface {
		Name() string
		Deliver(ctx context.Context, p Payload) error
	}

	// Notifier is what the domain services depend on.
	Notifier interface {
		Notify(ctx context.Context, p Payload) []Result
	}

	// Result is the outcome of one delivery attempt.
	Result struct {
		Sink string
		Err  error
	}

	// Dispatcher delivers payloads to its sinks in registration order.
	Dispatcher struct {
		mu     sync.RWMutex
		sinks  []Sink
		logger core.Logger
	}
)

var _ Notifier = (*Dispatcher)(nil) // interface compliance check

func NewDispatcher(logger core.Logger, sinks ...Sink) *Dispatcher {
	vala.BeginValidation().Validate(
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	d := &Dispatcher{logger: logger}
	for _, s := range sinks {
		d.AddSink(s)
	}
	return d
}

// AddSink appends s after the already registered sinks.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) SinkNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify attempts every sink, whatever the outcome of the previous ones.
// Failures are logged and reported in the results, never returned to the caller.
func (d *Dispatcher) Notify(ctx context.Context, p Payload) []Result {
	if p.Timestamp.IsZero() {
		p.Timestamp = core.NowFunc()
	}

	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	results := make([]Result, 0, len(sinks))
	for _, s := range sinks {
		err := s.Deliver(ctx, p)
		if err != nil {
			err = errors.Wrapf(err, "delivering %s notification to %s sink", p.Type, s.Name())
			d.logger.Error(fmt.Sprintf("notification sink %q failed", s.Name()), err, map[string]interface{}{
				"userId": p.UserID,
				"type":   p.Type,
			})
		}
		results = append(results, Result{Sink: s.Name(), Err: err})
	}
	return results
}
