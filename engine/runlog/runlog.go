// Package runlog records an ingest run as a stream of structured lifecycle
// events. The file sink is append-only JSON lines and doubles as the audit
// trail of a partially failed run.
package runlog

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindRunStart     Kind = "run_start"
	KindRecordStart  Kind = "record_start"
	KindEmbedAttempt Kind = "embed_attempt"
	KindEmbedFailed  Kind = "embed_failed"
	KindEmbedded     Kind = "embedded"
	KindWriteAttempt Kind = "write_attempt"
	KindWritten      Kind = "written"
	KindWriteFailed  Kind = "write_failed"
	KindRunEnd       Kind = "run_end"
)

// Event is one line of the run log. Index is the 1-based record position.
type Event struct {
	Time      time.Time `json:"time"`
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Mode      string    `json:"mode,omitempty"`
	Index     int       `json:"index,omitempty"`
	Total     int       `json:"total,omitempty"`
	Key       string    `json:"key,omitempty"`
	PointID   string    `json:"point_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	OK        *bool     `json:"ok,omitempty"`
	Err       string    `json:"error,omitempty"`
	Succeeded int       `json:"succeeded,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Sink receives events in emission order.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) error { return nil }

// Multi fans an event out to several sinks. Every sink sees every event;
// errors are joined.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return multi(live)
}

type multi []Sink

func (m multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (m *Memory) Emit(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Bool returns a pointer to b, for Event.OK.
func Bool(b bool) *bool { return &b }
