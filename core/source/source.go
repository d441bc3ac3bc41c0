// Package source declares the external collaborators the prediction core
// reads from: the relational store holding prices and driver data, and the
// geocoding service.
package source

import (
	"context"
	"errors"

	"github.com/kilianp07/freightmatch/core/model"
)

// ErrNotFound is returned by a Geocoder when the place name cannot be
// resolved. Any other error means the service itself is unavailable.
var ErrNotFound = errors.New("location not found")

// ErrUnavailable marks errors caused by an unreachable data source.
var ErrUnavailable = errors.New("data source unavailable")

// PriceSource returns the full historical price table.
type PriceSource interface {
	PriceRecords(ctx context.Context) ([]model.PriceRecord, error)
}

// DriverSource returns the three driver record sets joined by the matcher.
type DriverSource interface {
	DriverLocations(ctx context.Context) ([]model.DriverLocation, error)
	DriverVehicles(ctx context.Context) ([]model.DriverVehicle, error)
	DriverProfiles(ctx context.Context) ([]model.DriverProfile, error)
}

// Store combines all data-source reads.
type Store interface {
	PriceSource
	DriverSource
}

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (lat, lon float64, err error)
}
