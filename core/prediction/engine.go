package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/metrics"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/monitoring"
	"github.com/kilianp07/freightmatch/core/region"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/translit"
)

// EncoderProvider returns the current region vocabulary.
type EncoderProvider interface {
	Encoder(ctx context.Context) (*region.Encoder, error)
}

// PriceModel predicts and learns route prices.
type PriceModel interface {
	Predict(ctx context.Context, origin, dest int) (int, error)
	Observe(ctx context.Context, origin, dest int, price float64) (int, error)
}

// LoadClassifier assigns a shipment to a load cluster.
type LoadClassifier interface {
	Classify(ctx context.Context, weight, volume float64) (int, error)
}

// DriverMatcher ranks drivers for a pickup location and load.
type DriverMatcher interface {
	Match(ctx context.Context, lat, lon, weight, volume float64) ([]model.DriverSummary, error)
}

// Deps groups the collaborators of an Engine. Normalizer, Metrics and Log
// are optional.
type Deps struct {
	Geocoder   source.Geocoder
	Regions    EncoderProvider
	Prices     PriceModel
	Loads      LoadClassifier
	Drivers    DriverMatcher
	Normalizer *translit.Normalizer
	Metrics    metrics.Sink
	Log        logger.Logger
}

// Engine answers quote requests.
type Engine struct {
	geo     source.Geocoder
	regions EncoderProvider
	prices  PriceModel
	loads   LoadClassifier
	drivers DriverMatcher
	norm    *translit.Normalizer
	metrics metrics.Sink
	log     logger.Logger
	now     func() time.Time
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(d Deps) *Engine {
	norm := translit.OrDefault(d.Normalizer)
	return &Engine{
		geo:     d.Geocoder,
		regions: d.Regions,
		prices:  d.Prices,
		loads:   d.Loads,
		drivers: d.Drivers,
		norm:    norm,
		metrics: metrics.OrNop(d.Metrics),
		log:     logger.OrNop(d.Log),
		now:     time.Now,
	}
}

// Predict validates req and returns the price, the load cluster and the best
// drivers for the shipment. When req carries an observed price the price
// model learns from it before predicting.
func (e *Engine) Predict(ctx context.Context, req Request) (model.Quote, error) {
	start := e.now()
	ev := metrics.QuoteEvent{RequestID: uuid.NewString(), Time: start}
	q, err := e.predict(ctx, req, &ev)
	ev.Latency = e.now().Sub(start)
	ev.Outcome = outcome(err)
	if err == nil {
		ev.Price, ev.ClusterID, ev.Drivers = q.Price, q.ClusterID, len(q.Drivers)
	}
	if merr := e.metrics.RecordQuote(ev); merr != nil {
		e.log.Warnf("record quote metrics: %v", merr)
	}

	switch ev.Outcome {
	case metrics.OutcomeOK:
		e.log.Infow("quote", map[string]any{
			"request_id": ev.RequestID, "price": q.Price, "cluster_id": q.ClusterID,
			"drivers": len(q.Drivers), "learned": ev.Learned,
		})
	case metrics.OutcomeInvalid:
		e.log.Debugw("quote rejected", map[string]any{"request_id": ev.RequestID, "error": err.Error()})
	default:
		e.log.Errorf("quote %s failed: %v", ev.RequestID, err)
		tags := map[string]string{"request_id": ev.RequestID}
		var up *UpstreamError
		if errors.As(err, &up) {
			tags["service"] = up.Service
		}
		monitoring.CaptureException(err, tags)
	}
	return q, err
}

func (e *Engine) predict(ctx context.Context, req Request, ev *metrics.QuoteEvent) (model.Quote, error) {
	q, err := req.Parse()
	if err != nil {
		return model.Quote{}, err
	}

	lat, lon, err := e.geo.Geocode(ctx, q.Origin)
	if errors.Is(err, source.ErrNotFound) {
		return model.Quote{}, invalid(ErrRegionNotGeocodable, "%s", q.Origin)
	}
	if err != nil {
		return model.Quote{}, upstream(ServiceGeocoder, err)
	}

	enc, err := e.regions.Encoder(ctx)
	if err != nil {
		return model.Quote{}, upstream(ServiceDatabase, err)
	}
	origin, err := enc.Encode(e.norm.Canonical(q.Origin))
	if err != nil {
		return model.Quote{}, invalid(ErrUnknownRegion, "from=%s", q.Origin)
	}
	dest, err := enc.Encode(e.norm.Canonical(q.Destination))
	if err != nil {
		return model.Quote{}, invalid(ErrUnknownRegion, "to=%s", q.Destination)
	}

	var out model.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if q.HasObservedPrice() {
			out.Price, err = e.prices.Observe(gctx, origin, dest, *q.ObservedPrice)
		} else {
			out.Price, err = e.prices.Predict(gctx, origin, dest)
		}
		return err
	})
	g.Go(func() error {
		var err error
		out.ClusterID, err = e.loads.Classify(gctx, q.Weight, q.Volume)
		return err
	})
	g.Go(func() error {
		drivers, err := e.drivers.Match(gctx, lat, lon, q.Weight, q.Volume)
		if errors.Is(err, source.ErrUnavailable) {
			return upstream(ServiceDatabase, err)
		}
		if err != nil {
			return err
		}
		out.Drivers = drivers
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Quote{}, err
	}
	if out.Drivers == nil {
		out.Drivers = []model.DriverSummary{}
	}
	ev.Learned = q.HasObservedPrice()
	return out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case IsValidation(err):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrUpstreamUnavailable):
		return metrics.OutcomeUpstream
	default:
		return metrics.OutcomeInternal
	}
}
