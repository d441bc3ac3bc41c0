package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDrivers struct{ mock.Mock }

func (m *mockDrivers) DriverLocations(ctx context.Context) ([]model.DriverLocation, error) {
	args := m.Called(ctx)
	locs, _ := args.Get(0).([]model.DriverLocation)
	return locs, args.Error(1)
}

func (m *mockDrivers) DriverVehicles(ctx context.Context) ([]model.DriverVehicle, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]model.DriverVehicle)
	return v, args.Error(1)
}

func (m *mockDrivers) DriverProfiles(ctx context.Context) ([]model.DriverProfile, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]model.DriverProfile)
	return p, args.Error(1)
}

func f(v float64) *float64 { return &v }

type fleetRow struct {
	id             int64
	lat, lon       float64
	weight, volume float64
}

func fleetSource(rows []fleetRow) *mockDrivers {
	var (
		locs     []model.DriverLocation
		vehicles []model.DriverVehicle
		profiles []model.DriverProfile
	)
	for _, r := range rows {
		locs = append(locs, model.DriverLocation{DriverID: r.id, Latitude: f(r.lat), Longitude: f(r.lon)})
		vehicles = append(vehicles, model.DriverVehicle{DriverID: r.id, Model: "Isuzu", WeightCapacity: f(r.weight), VolumeCapacity: f(r.volume)})
		profiles = append(profiles, model.DriverProfile{DriverID: r.id, FullName: fmt.Sprintf("driver-%d", r.id), Phone: "+998", Status: "active"})
	}
	src := &mockDrivers{}
	src.On("DriverLocations", mock.Anything).Return(locs, nil)
	src.On("DriverVehicles", mock.Anything).Return(vehicles, nil)
	src.On("DriverProfiles", mock.Anything).Return(profiles, nil)
	return src
}

func TestJoinDropsIncompleteRows(t *testing.T) {
	locs := []model.DriverLocation{
		{DriverID: 3, Latitude: f(41), Longitude: f(69)},
		{DriverID: 1, Latitude: f(40), Longitude: f(70)},
		{DriverID: 2, Latitude: nil, Longitude: f(70)},
		{DriverID: 4, Latitude: f(1), Longitude: f(1)},
		{DriverID: 5, Latitude: f(1), Longitude: f(1)},
	}
	vehicles := []model.DriverVehicle{
		{DriverID: 1, Model: "Kamaz", WeightCapacity: f(10000), VolumeCapacity: f(40)},
		{DriverID: 2, Model: "Gazel", WeightCapacity: f(1500), VolumeCapacity: f(9)},
		{DriverID: 3, Model: "Isuzu", WeightCapacity: f(5000), VolumeCapacity: f(20)},
		{DriverID: 4, Model: "Labo", WeightCapacity: nil, VolumeCapacity: f(3)},
		{DriverID: 6, Model: "Man", WeightCapacity: f(1), VolumeCapacity: f(1)},
	}
	profiles := []model.DriverProfile{
		{DriverID: 1, FullName: "Ali", Phone: "1", Status: "active"},
		{DriverID: 2, FullName: "Vali", Phone: "2"},
		{DriverID: 3, FullName: "Sardor", Phone: "3"},
		{DriverID: 4, FullName: "Olim", Phone: "4"},
		{DriverID: 5, FullName: "Bek", Phone: "5"},
	}

	got := Join(locs, vehicles, profiles)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Ali", got[0].FullName)
	assert.Equal(t, "Kamaz", got[0].TransportModel)
	assert.Equal(t, 10000.0, got[0].WeightCapacity)
	assert.Equal(t, 40.0, got[0].Latitude)
	assert.Equal(t, "active", got[0].Status)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestJoinEmpty(t *testing.T) {
	assert.Empty(t, Join(nil, nil, nil))
}

func TestMatchEmptyFleet(t *testing.T) {
	m := NewMatcher(fleetSource(nil), nil)
	got, err := m.Match(context.Background(), 41, 69, 1000, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatchSourceError(t *testing.T) {
	boom := errors.New("connection refused")
	src := &mockDrivers{}
	src.On("DriverLocations", mock.Anything).Return(nil, boom)
	src.On("DriverVehicles", mock.Anything).Return(nil, nil).Maybe()
	src.On("DriverProfiles", mock.Anything).Return(nil, nil).Maybe()

	_, err := NewMatcher(src, nil).Match(context.Background(), 41, 69, 1000, 10)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, source.ErrUnavailable)
}

func TestMatchOrdersByDistanceWithinCluster(t *testing.T) {
	var rows []fleetRow
	for i := 1; i <= 7; i++ {
		rows = append(rows, fleetRow{id: int64(i), lat: 41 + float64(8-i)*0.1, lon: 69, weight: 1000, volume: 10})
	}
	got, err := NewMatcher(fleetSource(rows), nil).Match(context.Background(), 41, 69, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, Limit)
	assert.Equal(t, "driver-7", got[0].FullName)
	assert.InDelta(t, 11.1, got[0].DistanceKm, 1e-6)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].DistanceKm < got[j].DistanceKm }))
}

func TestMatchPrefersExactCapacity(t *testing.T) {
	rows := []fleetRow{
		{id: 1, lat: 41, lon: 69, weight: 1000, volume: 8},
		{id: 2, lat: 45, lon: 65, weight: 1200, volume: 10},
		{id: 3, lat: 41, lon: 69, weight: 20000, volume: 80},
		{id: 4, lat: 41, lon: 69, weight: 22000, volume: 90},
		{id: 5, lat: 41, lon: 69, weight: 5000, volume: 30},
		{id: 6, lat: 41, lon: 69, weight: 900, volume: 9},
	}
	got, err := NewMatcher(fleetSource(rows), nil).Match(context.Background(), 41, 69, 1200, 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), Limit)
	assert.Equal(t, "driver-2", got[0].FullName)
	assert.Equal(t, 1200.0, got[0].WeightCapacity)
	assert.InDelta(t, 4*kmPerDegree*1.4142135, got[0].DistanceKm, 0.01)
}

func TestMatchSingleDriver(t *testing.T) {
	rows := []fleetRow{{id: 9, lat: 40, lon: 70, weight: 3000, volume: 12}}
	got, err := NewMatcher(fleetSource(rows), nil).Match(context.Background(), 40, 70, 500, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].DistanceKm)
}

func TestMatchRanksByCapacityThenDistance(t *testing.T) {
	rows := []fleetRow{
		{id: 8, lat: 41, lon: 69, weight: 1010, volume: 10},
		{id: 4, lat: 41.3, lon: 69, weight: 1000, volume: 9},
		{id: 10, lat: 41, lon: 69, weight: 40000, volume: 160},
		{id: 1, lat: 41.5, lon: 69, weight: 1000, volume: 10},
		{id: 6, lat: 41, lon: 69, weight: 1000, volume: 13},
		{id: 3, lat: 41, lon: 69, weight: 1000, volume: 11},
		{id: 9, lat: 41, lon: 69, weight: 20000, volume: 80},
		{id: 7, lat: 41.1, lon: 69, weight: 1003, volume: 10},
		{id: 2, lat: 41.2, lon: 69, weight: 1000, volume: 10},
		{id: 11, lat: 41, lon: 69, weight: 60000, volume: 240},
		{id: 5, lat: 41, lon: 69, weight: 1002, volume: 10},
	}
	got, err := NewMatcher(fleetSource(rows), nil).Match(context.Background(), 41, 69, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, Limit)

	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.FullName
	}
	assert.Equal(t, []string{"driver-2", "driver-1", "driver-3", "driver-4", "driver-5"}, names)

	capacity := func(d model.DriverSummary) float64 {
		dw, dv := d.WeightCapacity-1000, d.VolumeCapacity-10
		return dw*dw + dv*dv
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if capacity(prev) == capacity(cur) {
			assert.Less(t, prev.DistanceKm, cur.DistanceKm, "tie at %d broken by distance", i)
			continue
		}
		assert.Less(t, capacity(prev), capacity(cur), "position %d", i)
	}
	assert.InDelta(t, 22.2, got[0].DistanceKm, 1e-6)
	assert.InDelta(t, 55.5, got[1].DistanceKm, 1e-6)
	assert.InDelta(t, 0, got[2].DistanceKm, 1e-6)
}
