// Package loadcluster assigns shipments to load-size clusters with an online
// k-means model that keeps learning from every request.
package loadcluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/freightmatch/core/learn"
	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/modelstore"
)

const (
	clusters = 2
	seed     = 42
)

// seedLoads are the (weight, volume) samples used to fit the scaler and the
// initial centers when no state is persisted.
var seedLoads = [][]float64{{1000, 10}, {2000, 20}}

// Classifier owns the persisted scaler and clusterer.
type Classifier struct {
	mu    sync.Mutex
	store modelstore.Store
	log   logger.Logger
}

// New returns a Classifier persisted in store.
func New(store modelstore.Store, log logger.Logger) *Classifier {
	return &Classifier{store: store, log: logger.OrNop(log)}
}

// Classify learns from the shipment and returns its cluster id.
func (c *Classifier) Classify(ctx context.Context, weight, volume float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scaler, km, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	x, err := scaler.Transform([]float64{weight, volume})
	if err != nil {
		return 0, fmt.Errorf("scale load: %w", err)
	}
	if err := km.PartialFit([][]float64{x}); err != nil {
		return 0, fmt.Errorf("update load clusters: %w", err)
	}
	id, err := km.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("predict load cluster: %w", err)
	}
	if err := c.save(ctx, modelstore.ClustererID, km); err != nil {
		return 0, err
	}
	if err := c.save(ctx, modelstore.ScalerID, scaler); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Classifier) load(ctx context.Context) (*learn.StandardScaler, *learn.MiniBatchKMeans, error) {
	scaler := &learn.StandardScaler{}
	okScaler, err := c.restore(ctx, modelstore.ScalerID, scaler)
	if err != nil {
		return nil, nil, err
	}
	km := learn.NewMiniBatchKMeans(clusters, seed)
	okKM, err := c.restore(ctx, modelstore.ClustererID, km)
	if err != nil {
		return nil, nil, err
	}
	if okScaler && scaler.Fitted() && okKM && km.Validate() == nil {
		return scaler, km, nil
	}
	return coldStart()
}

// restore decodes the blob stored under id into v. It reports false when the
// blob is absent or unreadable.
func (c *Classifier) restore(ctx context.Context, id string, v any) (bool, error) {
	blob, err := c.store.Load(ctx, id)
	if errors.Is(err, modelstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", id, err)
	}
	if err := json.Unmarshal(blob, v); err != nil {
		c.log.Warnf("%s state corrupt, starting fresh: %v", id, err)
		return false, nil
	}
	return true, nil
}

func (c *Classifier) save(ctx context.Context, id string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := c.store.Save(ctx, id, blob); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func coldStart() (*learn.StandardScaler, *learn.MiniBatchKMeans, error) {
	scaler := &learn.StandardScaler{}
	if err := scaler.Fit(seedLoads); err != nil {
		return nil, nil, fmt.Errorf("initialise load scaler: %w", err)
	}
	scaled, err := scaler.TransformAll(seedLoads)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise load scaler: %w", err)
	}
	km := learn.NewMiniBatchKMeans(clusters, seed)
	if err := km.PartialFit(scaled); err != nil {
		return nil, nil, fmt.Errorf("initialise load clusters: %w", err)
	}
	return scaler, km, nil
}
