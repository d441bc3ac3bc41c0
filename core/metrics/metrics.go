package metrics

import (
	"errors"
	"time"
)

// Quote outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeUpstream     = "upstream"
	OutcomeInternal     = "internal"
)

// QuoteEvent describes one prediction request.
type QuoteEvent struct {
	RequestID string
	Outcome   string
	Price     int
	ClusterID int
	Drivers   int
	Learned   bool
	Latency   time.Duration
	Time      time.Time
}

// RetrainEvent describes one batch retraining run.
type RetrainEvent struct {
	Samples  int
	Duration time.Duration
	Err      error
	Time     time.Time
}

// Sink records service events for observability purposes.
type Sink interface {
	RecordQuote(ev QuoteEvent) error
	RecordRetrain(ev RetrainEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordQuote(QuoteEvent) error     { return nil }
func (NopSink) RecordRetrain(RetrainEvent) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordQuote forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordQuote(ev QuoteEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordQuote(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordRetrain forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordRetrain(ev RetrainEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRetrain(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		Close(s)
	}
}

// Close releases s when it holds resources such as a client connection.
func Close(s Sink) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}

// OrNop returns s, or a NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
