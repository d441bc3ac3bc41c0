// Package app wires the quote engine, its data sources and its background
// jobs into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/freightmatch/api/predict"
	"github.com/kilianp07/freightmatch/config"
	"github.com/kilianp07/freightmatch/core/loadcluster"
	"github.com/kilianp07/freightmatch/core/matching"
	coremetrics "github.com/kilianp07/freightmatch/core/metrics"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/modelstore"
	coremon "github.com/kilianp07/freightmatch/core/monitoring"
	"github.com/kilianp07/freightmatch/core/prediction"
	"github.com/kilianp07/freightmatch/core/pricing"
	"github.com/kilianp07/freightmatch/core/region"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/training"
	"github.com/kilianp07/freightmatch/core/translit"
	"github.com/kilianp07/freightmatch/infra/datasource"
	"github.com/kilianp07/freightmatch/infra/geocoder"
	"github.com/kilianp07/freightmatch/infra/logger"
	"github.com/kilianp07/freightmatch/infra/metrics"
	infrastore "github.com/kilianp07/freightmatch/infra/modelstore"
	"github.com/kilianp07/freightmatch/infra/mqtt"
	"github.com/kilianp07/freightmatch/internal/eventbus"
)

// Core holds what both the API and the offline trainer need: the data
// source, persisted model state and the price model.
type Core struct {
	cfg     *config.Config
	log     logger.Logger
	src     source.Store
	models  modelstore.Store
	prices  *pricing.Model
	trainer *training.Trainer
	sink    coremetrics.Sink
	norm    *translit.Normalizer
	bus     *eventbus.TypedBus[model.RetrainCompleted]
	closers []func() error
}

// OpenCore connects to the database, opens the model store and builds the
// trainer. An unreachable database is an error.
func OpenCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	return openCore(ctx, cfg, false)
}

// openCore with lazy set keeps going when the database is down; queries
// then fail with source.ErrUnavailable until it is back.
func openCore(ctx context.Context, cfg *config.Config, lazy bool) (*Core, error) {
	log := logger.New("service")
	norm, err := loadNormalizer(cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	db, err := datasource.Open(ctx, datasource.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		RetryDelay:      cfg.Database.RetryDelay(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		QueryTimeout:    cfg.Database.QueryTimeout(),
		Lazy:            lazy,
	}, logger.New("datasource"))
	if err != nil {
		return nil, fmt.Errorf("datasource: %w", err)
	}
	store, err := infrastore.NewSQLiteStore(cfg.Models.Path)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("model store: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	c := newCore(cfg, db, store, sink, norm, log)
	c.closers = append(c.closers, store.Close, db.Close)
	return c, nil
}

func loadNormalizer(cfg config.NormalizerConfig) (*translit.Normalizer, error) {
	if cfg.ExceptionsFile == "" {
		return translit.New(nil), nil
	}
	extra, err := translit.LoadExceptions(cfg.ExceptionsFile)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	return translit.New(extra), nil
}

func newCore(cfg *config.Config, src source.Store, store modelstore.Store, sink coremetrics.Sink, norm *translit.Normalizer, log logger.Logger) *Core {
	bus := eventbus.NewTyped[model.RetrainCompleted]()
	prices := pricing.New(store, logger.New("pricing"))
	return &Core{
		cfg:     cfg,
		log:     log,
		src:     src,
		models:  store,
		prices:  prices,
		trainer: training.NewTrainer(src, prices, bus, sink, norm, logger.New("training")),
		sink:    sink,
		norm:    norm,
		bus:     bus,
	}
}

// Retrain runs one batch retrain bounded by the configured timeout.
func (c *Core) Retrain(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Training.Timeout())
	defer cancel()
	return c.trainer.Retrain(ctx)
}

// Close releases connections in reverse order of creation.
func (c *Core) Close() error {
	c.bus.Close()
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	coremetrics.Close(c.sink)
	return errors.Join(errs...)
}

// Service serves quotes over HTTP and runs retrains on startup, on a cron
// schedule and on MQTT command.
type Service struct {
	*Core
	engine   *prediction.Engine
	regions  *region.Cache
	trigger  *mqtt.Trigger
	registry prometheus.Registerer
}

// New builds the full service.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg.Geocoder.APIKey == "" {
		return nil, errors.New("geocoder: api_key is required")
	}
	core, err := openCore(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	geo, err := buildGeocoder(ctx, cfg, core)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	svc := assemble(core, geo)
	if cfg.MQTT.Enabled() {
		trig, err := mqtt.NewTrigger(cfg.MQTT, core, logger.New("mqtt_trigger"))
		if err != nil {
			_ = core.Close()
			return nil, fmt.Errorf("mqtt trigger: %w", err)
		}
		svc.trigger = trig
	}
	return svc, nil
}

func buildGeocoder(ctx context.Context, cfg *config.Config, core *Core) (source.Geocoder, error) {
	var geo source.Geocoder = geocoder.NewGoogleClient(geocoder.Options{
		APIKey:        cfg.Geocoder.APIKey,
		BaseURL:       cfg.Geocoder.BaseURL,
		Region:        cfg.Geocoder.Region,
		Language:      cfg.Geocoder.Language,
		Timeout:       cfg.Geocoder.Timeout(),
		RatePerSecond: cfg.Geocoder.RatePerSecond,
		Burst:         cfg.Geocoder.Burst,
	})
	if cfg.Cache.RedisAddr == "" {
		return geo, nil
	}
	cache, err := geocoder.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.GeocodeTTL())
	if err != nil {
		core.log.Warnf("geocode cache disabled: %v", err)
		return geo, nil
	}
	core.closers = append([]func() error{cache.Close}, core.closers...)
	return geocoder.NewCached(geo, cache, logger.New("geocoder")), nil
}

// assemble builds the quote engine on top of core. The engine, the region
// vocabulary and the trainer share core's Normalizer.
func assemble(core *Core, geo source.Geocoder) *Service {
	regions := region.NewCache(core.src, core.cfg.Cache.VocabularyTTL(), core.norm, logger.New("region"))
	engine := prediction.NewEngine(prediction.Deps{
		Geocoder:   geo,
		Regions:    regions,
		Prices:     core.prices,
		Loads:      loadcluster.New(core.models, logger.New("loadcluster")),
		Drivers:    matching.NewMatcher(core.src, logger.New("matching")),
		Normalizer: core.norm,
		Metrics:    core.sink,
		Log:        logger.New("prediction"),
	})
	return &Service{Core: core, engine: engine, regions: regions, registry: prometheus.DefaultRegisterer}
}

// Handler returns the HTTP API.
func (s *Service) Handler(reg prometheus.Registerer) http.Handler {
	var health predict.Pinger
	if p, ok := s.src.(predict.Pinger); ok {
		health = p
	}
	return predict.NewRouter(predict.Deps{
		Predictor:  s.engine,
		Retrainer:  s.Core,
		Health:     health,
		Registerer: reg,
		Limits: predict.RateLimit{
			PerSecond: s.cfg.HTTP.RatePerSecond,
			Burst:     s.cfg.HTTP.RateBurst,
		},
		Log: logger.New("api"),
	})
}

// Run starts every component and blocks until ctx is canceled or one of
// them fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	events := s.bus.Subscribe()
	g.Go(func() error {
		s.regions.Watch(ctx, events)
		return nil
	})

	if !s.cfg.Training.SkipStartup {
		s.startupRetrain(ctx)
	}

	g.Go(func() error {
		return predict.Serve(ctx, predict.ServerOptions{
			Addr:         s.cfg.HTTP.Addr,
			ReadTimeout:  s.cfg.HTTP.ReadTimeout(),
			WriteTimeout: s.cfg.HTTP.WriteTimeout(),
		}, s.Handler(s.registry), logger.New("http"))
	})
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error {
			return metrics.StartPromServer(ctx, addr, prometheus.DefaultGatherer)
		})
	}
	if spec := s.cfg.Training.Schedule; spec != "" {
		sched, err := s.schedule(spec)
		if err != nil {
			return err
		}
		sched.Start()
		g.Go(func() error {
			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}
	if s.trigger != nil {
		g.Go(func() error { return s.trigger.Run(ctx) })
	}
	return g.Wait()
}

func (s *Service) startupRetrain(ctx context.Context) {
	n, err := s.Retrain(ctx)
	switch {
	case errors.Is(err, training.ErrNoData):
		s.log.Warnf("startup retrain skipped: %v", err)
	case err != nil:
		s.log.Errorf("startup retrain failed: %v", err)
		coremon.CaptureException(err, map[string]string{"module": "training", "trigger": "startup"})
	default:
		s.log.Infof("startup retrain used %d samples", n)
	}
}

func (s *Service) schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		defer coremon.Recover()
		if _, err := s.Retrain(context.Background()); err != nil {
			s.log.Errorf("scheduled retrain failed: %v", err)
			coremon.CaptureException(err, map[string]string{"module": "training", "trigger": "cron"})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("training schedule: %w", err)
	}
	return c, nil
}

// Close disconnects the MQTT trigger and releases the core.
func (s *Service) Close() error {
	if s.trigger != nil {
		s.trigger.Disconnect()
	}
	return s.Core.Close()
}

// Train runs one batch retrain and releases every resource.
func Train(ctx context.Context, cfg *config.Config) (int, error) {
	core, err := OpenCore(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := core.Close(); err != nil {
			core.log.Errorf("close: %v", err)
		}
	}()
	return core.Retrain(ctx)
}
