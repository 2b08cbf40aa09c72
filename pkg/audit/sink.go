// Package audit defines the EXTERNAL_LOGGERS sink contract (spec §6):
// a write-only trail of admission/completion events. It is never read
// back by the governor — Non-goals retains "no persistence of task
// history across restarts" for the governor's own in-memory state.
package audit

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Kind discriminates one audited event.
type Kind string

const (
	KindAdmitted Kind = "admitted"
	KindComplete Kind = "complete"
	KindFailed   Kind = "failed"
)

// Event is one row a Sink records.
type Event struct {
	ProcID     string
	ModelClass string
	Kind       Kind
	Detail     string
	OccurredAt time.Time
}

// Sink is one EXTERNAL_LOGGERS implementation.
type Sink interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Multi fans one event out to every configured sink, continuing past
// individual failures (an audit sink going down must never block task
// processing).
type Multi struct {
	sinks []Sink
}

// NewMulti wraps zero or more sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Record writes to every sink, trying all of them even if one fails,
// and returns every error encountered combined.
func (m *Multi) Record(ctx context.Context, event Event) error {
	var errs error
	for _, s := range m.sinks {
		errs = multierr.Append(errs, s.Record(ctx, event))
	}
	return errs
}

// Close closes every sink, trying all of them and returning every error
// encountered combined.
func (m *Multi) Close() error {
	var errs error
	for _, s := range m.sinks {
		errs = multierr.Append(errs, s.Close())
	}
	return errs
}
