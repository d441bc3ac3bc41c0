// Package pricing owns the online price regressor. Every call loads the
// persisted state, optionally learns from an observed price, predicts and
// persists again, all under one lock.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kilianp07/freightmatch/core/learn"
	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/modelstore"
)

// Model predicts shipping prices from encoded origin and destination.
type Model struct {
	mu    sync.Mutex
	store modelstore.Store
	log   logger.Logger
}

// New returns a Model persisted in store.
func New(store modelstore.Store, log logger.Logger) *Model {
	return &Model{store: store, log: logger.OrNop(log)}
}

// Predict returns the price for the route without changing the model.
func (m *Model) Predict(ctx context.Context, origin, dest int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	return predict(reg, origin, dest)
}

// Observe learns from one observed price, persists the model and returns the
// updated prediction for the same route.
func (m *Model) Observe(ctx context.Context, origin, dest int, price float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	x := features(origin, dest)
	if err := reg.PartialFit([][]float64{x}, []float64{price}); err != nil {
		return 0, fmt.Errorf("update price model: %w", err)
	}
	if err := m.save(ctx, reg); err != nil {
		return 0, err
	}
	return predict(reg, origin, dest)
}

// Replace swaps the persisted model for reg.
func (m *Model) Replace(ctx context.Context, reg *learn.SGDRegressor) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("replace price model: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(ctx, reg)
}

func (m *Model) load(ctx context.Context) (*learn.SGDRegressor, error) {
	blob, err := m.store.Load(ctx, modelstore.PriceModelID)
	if errors.Is(err, modelstore.ErrNotFound) {
		return coldStart()
	}
	if err != nil {
		return nil, fmt.Errorf("load price model: %w", err)
	}
	reg := learn.NewSGDRegressor()
	if err := json.Unmarshal(blob, reg); err == nil {
		err = reg.Validate()
		if err == nil {
			return reg, nil
		}
		m.log.Warnf("price model state unusable, starting fresh: %v", err)
	} else {
		m.log.Warnf("price model state corrupt, starting fresh: %v", err)
	}
	return coldStart()
}

func (m *Model) save(ctx context.Context, reg *learn.SGDRegressor) error {
	blob, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode price model: %w", err)
	}
	if err := m.store.Save(ctx, modelstore.PriceModelID, blob); err != nil {
		return fmt.Errorf("save price model: %w", err)
	}
	return nil
}

// coldStart fits a fresh regressor on the single sample (0,0) -> 0.
func coldStart() (*learn.SGDRegressor, error) {
	reg := learn.NewSGDRegressor()
	if err := reg.PartialFit([][]float64{{0, 0}}, []float64{0}); err != nil {
		return nil, fmt.Errorf("initialise price model: %w", err)
	}
	return reg, nil
}

func features(origin, dest int) []float64 {
	return []float64{float64(origin), float64(dest)}
}

// predict truncates the regression output to whole currency units. Negative
// and NaN outputs become 0; outputs beyond the int range saturate at
// math.MaxInt.
func predict(reg *learn.SGDRegressor, origin, dest int) (int, error) {
	y, err := reg.Predict(features(origin, dest))
	if err != nil {
		return 0, fmt.Errorf("predict price: %w", err)
	}
	if y < 0 || math.IsNaN(y) {
		return 0, nil
	}
	if y >= math.MaxInt {
		return math.MaxInt, nil
	}
	return int(y), nil
}
