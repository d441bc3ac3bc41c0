// Package matching ranks available drivers for a shipment. Drivers are
// grouped by vehicle capacity with a k-means model fit for each request;
// only drivers in the shipment's group are ranked, by capacity fit first and
// distance second.
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/freightmatch/core/learn"
	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/source"
)

const (
	maxClusters = 4
	seed        = 42
	// kmPerDegree converts planar degree distance to kilometres.
	kmPerDegree = 111
	// Limit is the maximum number of drivers returned.
	Limit = 5
)

// Matcher finds the best drivers for a shipment.
type Matcher struct {
	src source.DriverSource
	log logger.Logger
}

// NewMatcher returns a Matcher reading drivers from src.
func NewMatcher(src source.DriverSource, log logger.Logger) *Matcher {
	return &Matcher{src: src, log: logger.OrNop(log)}
}

// Match returns up to Limit drivers for a shipment picked up at (lat, lon).
// An empty fleet or an empty cluster yields an empty slice.
func (m *Matcher) Match(ctx context.Context, lat, lon, weight, volume float64) ([]model.DriverSummary, error) {
	drivers, err := m.fleet(ctx)
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return []model.DriverSummary{}, nil
	}

	caps := make([][]float64, len(drivers))
	for i, d := range drivers {
		caps[i] = []float64{d.WeightCapacity, d.VolumeCapacity}
	}
	scaler := &learn.StandardScaler{}
	if err := scaler.Fit(caps); err != nil {
		return nil, fmt.Errorf("fit capacity scaler: %w", err)
	}
	scaled, err := scaler.TransformAll(caps)
	if err != nil {
		return nil, fmt.Errorf("scale capacities: %w", err)
	}
	km := learn.NewMiniBatchKMeans(int(math.Min(maxClusters, float64(len(drivers)))), seed)
	if err := km.PartialFit(scaled); err != nil {
		return nil, fmt.Errorf("cluster capacities: %w", err)
	}
	shipment, err := scaler.Transform([]float64{weight, volume})
	if err != nil {
		return nil, fmt.Errorf("scale shipment: %w", err)
	}
	target, err := km.Predict(shipment)
	if err != nil {
		return nil, fmt.Errorf("classify shipment: %w", err)
	}

	type candidate struct {
		driver   model.Driver
		capacity float64
		km       float64
	}
	var same []candidate
	for i, d := range drivers {
		c, err := km.Predict(scaled[i])
		if err != nil {
			return nil, fmt.Errorf("classify driver %d: %w", d.ID, err)
		}
		if c != target {
			continue
		}
		same = append(same, candidate{
			driver:   d,
			capacity: floats.Distance(caps[i], []float64{weight, volume}, 2),
			km:       floats.Distance([]float64{d.Latitude, d.Longitude}, []float64{lat, lon}, 2) * kmPerDegree,
		})
	}
	sort.SliceStable(same, func(i, j int) bool {
		if same[i].capacity != same[j].capacity {
			return same[i].capacity < same[j].capacity
		}
		return same[i].km < same[j].km
	})
	if len(same) > Limit {
		same = same[:Limit]
	}

	out := make([]model.DriverSummary, 0, len(same))
	for _, c := range same {
		out = append(out, model.DriverSummary{
			FullName:       c.driver.FullName,
			Phone:          c.driver.Phone,
			TransportModel: c.driver.TransportModel,
			WeightCapacity: c.driver.WeightCapacity,
			VolumeCapacity: c.driver.VolumeCapacity,
			DistanceKm:     c.km,
		})
	}
	m.log.Debugw("drivers matched", map[string]any{
		"fleet": len(drivers), "cluster": target, "matched": len(out),
	})
	return out, nil
}

// fleet loads the three driver record sets concurrently and joins them.
func (m *Matcher) fleet(ctx context.Context) ([]model.Driver, error) {
	var (
		locs     []model.DriverLocation
		vehicles []model.DriverVehicle
		profiles []model.DriverProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		locs, err = m.src.DriverLocations(gctx)
		return err
	})
	g.Go(func() (err error) {
		vehicles, err = m.src.DriverVehicles(gctx)
		return err
	})
	g.Go(func() (err error) {
		profiles, err = m.src.DriverProfiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load drivers: %w: %w", source.ErrUnavailable, err)
	}
	return Join(locs, vehicles, profiles), nil
}
