package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/kilianp07/freightmatch/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records quote and retrain events in Prometheus metrics.
type PromSink struct {
	quotes   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	drivers  prometheus.Histogram
	samples  prometheus.Gauge
	retrains *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The Prometheus server should be started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_quotes_total",
		Help: "Total number of price quotes by outcome",
	}, []string{"outcome", "learned"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "freight_quote_duration_seconds",
		Help:    "Time spent answering a quote request",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	drivers := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "freight_matched_drivers",
		Help:    "Number of drivers returned per successful quote",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})
	samples := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "freight_price_model_samples",
		Help: "Number of samples used by the last successful retrain",
	})
	retrains := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_retrains_total",
		Help: "Total number of batch retraining runs by result",
	}, []string{"success"})

	var err error
	if quotes, err = register(reg, quotes); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if drivers, err = register(reg, drivers); err != nil {
		return nil, err
	}
	if samples, err = register(reg, samples); err != nil {
		return nil, err
	}
	if retrains, err = register(reg, retrains); err != nil {
		return nil, err
	}
	return &PromSink{quotes: quotes, latency: latency, drivers: drivers, samples: samples, retrains: retrains}, nil
}

// register adds c to reg, returning the existing collector when an equal
// one was registered before.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordQuote counts the quote and observes its latency.
func (s *PromSink) RecordQuote(ev coremetrics.QuoteEvent) error {
	s.quotes.WithLabelValues(ev.Outcome, strconv.FormatBool(ev.Learned)).Inc()
	s.latency.WithLabelValues(ev.Outcome).Observe(ev.Latency.Seconds())
	if ev.Outcome == coremetrics.OutcomeOK {
		s.drivers.Observe(float64(ev.Drivers))
	}
	return nil
}

// RecordRetrain counts the run and, on success, publishes the sample count.
func (s *PromSink) RecordRetrain(ev coremetrics.RetrainEvent) error {
	s.retrains.WithLabelValues(strconv.FormatBool(ev.Err == nil)).Inc()
	if ev.Err == nil {
		s.samples.Set(float64(ev.Samples))
	}
	return nil
}
