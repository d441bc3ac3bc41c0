// Package training rebuilds the price model from the full price history.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/freightmatch/core/learn"
	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/metrics"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/region"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/translit"
)

// ErrNoData is returned when no usable price record exists.
var ErrNoData = errors.New("no usable price records")

// ModelReplacer swaps in a newly trained regressor.
type ModelReplacer interface {
	Replace(ctx context.Context, reg *learn.SGDRegressor) error
}

// Publisher announces completed retraining runs.
type Publisher interface {
	Publish(model.RetrainCompleted)
}

// Trainer runs batch retraining.
type Trainer struct {
	src     source.PriceSource
	target  ModelReplacer
	events  Publisher
	metrics metrics.Sink
	norm    *translit.Normalizer
	log     logger.Logger
	now     func() time.Time
}

// NewTrainer creates a Trainer. events, sink and norm may be nil; norm must
// match the Normalizer used to encode queries.
func NewTrainer(src source.PriceSource, target ModelReplacer, events Publisher, sink metrics.Sink, norm *translit.Normalizer, log logger.Logger) *Trainer {
	return &Trainer{
		src:     src,
		target:  target,
		events:  events,
		metrics: metrics.OrNop(sink),
		norm:    translit.OrDefault(norm),
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// Retrain fits a fresh price model on every usable record and replaces the
// live model with it. It returns the number of samples used. When no record
// is usable the live model is left untouched and ErrNoData is returned.
func (t *Trainer) Retrain(ctx context.Context) (int, error) {
	start := t.now()
	n, err := t.retrain(ctx)
	ev := metrics.RetrainEvent{Samples: n, Duration: t.now().Sub(start), Err: err, Time: start}
	if merr := t.metrics.RecordRetrain(ev); merr != nil {
		t.log.Warnf("record retrain metrics: %v", merr)
	}
	if err != nil {
		return 0, err
	}
	t.log.Infow("price model retrained", map[string]any{"samples": n, "duration_ms": ev.Duration.Milliseconds()})
	if t.events != nil {
		t.events.Publish(model.RetrainCompleted{Samples: n, At: t.now()})
	}
	return n, nil
}

func (t *Trainer) retrain(ctx context.Context) (int, error) {
	records, err := t.src.PriceRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load price records: %w: %w", source.ErrUnavailable, err)
	}
	X, y := Samples(records, t.norm)
	if len(X) == 0 {
		return 0, ErrNoData
	}
	reg := learn.NewSGDRegressor()
	if err := reg.FitBatch(X, y); err != nil {
		return 0, fmt.Errorf("fit price model: %w", err)
	}
	if err := t.target.Replace(ctx, reg); err != nil {
		return 0, err
	}
	return len(X), nil
}

// Samples encodes records against a vocabulary built from the same records.
// Records with a non-positive price or a name that does not survive
// normalization are dropped. A nil norm uses the built-in exceptions only.
func Samples(records []model.PriceRecord, norm *translit.Normalizer) ([][]float64, []float64) {
	norm = translit.OrDefault(norm)
	enc := region.Build(region.VocabularyFrom(records, norm))
	var (
		X [][]float64
		y []float64
	)
	for _, r := range records {
		if r.Price <= 0 {
			continue
		}
		o, err := enc.Encode(norm.Canonical(translit.RegionPart(r.Origin)))
		if err != nil {
			continue
		}
		d, err := enc.Encode(norm.Canonical(translit.RegionPart(r.Destination)))
		if err != nil {
			continue
		}
		X = append(X, []float64{float64(o), float64(d)})
		y = append(y, r.Price)
	}
	return X, y
}
