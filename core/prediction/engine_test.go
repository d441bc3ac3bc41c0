package prediction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightmatch/core/loadcluster"
	"github.com/kilianp07/freightmatch/core/matching"
	"github.com/kilianp07/freightmatch/core/metrics"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/modelstore"
	"github.com/kilianp07/freightmatch/core/pricing"
	"github.com/kilianp07/freightmatch/core/region"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/training"
)

type mockGeocoder struct{ mock.Mock }

func (m *mockGeocoder) Geocode(ctx context.Context, location string) (float64, float64, error) {
	args := m.Called(ctx, location)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

type fakeStore struct {
	prices   []model.PriceRecord
	priceErr error
	driveErr error
}

func fp(v float64) *float64 { return &v }

func (f *fakeStore) PriceRecords(context.Context) ([]model.PriceRecord, error) {
	return f.prices, f.priceErr
}

func (f *fakeStore) DriverLocations(context.Context) ([]model.DriverLocation, error) {
	return []model.DriverLocation{
		{DriverID: 1, Latitude: fp(41.3), Longitude: fp(69.2)},
		{DriverID: 2, Latitude: fp(40.8), Longitude: fp(72.3)},
	}, f.driveErr
}

func (f *fakeStore) DriverVehicles(context.Context) ([]model.DriverVehicle, error) {
	return []model.DriverVehicle{
		{DriverID: 1, Model: "Isuzu", WeightCapacity: fp(1000), VolumeCapacity: fp(10)},
		{DriverID: 2, Model: "Kamaz", WeightCapacity: fp(20000), VolumeCapacity: fp(80)},
	}, nil
}

func (f *fakeStore) DriverProfiles(context.Context) ([]model.DriverProfile, error) {
	return []model.DriverProfile{
		{DriverID: 1, FullName: "Ali Valiyev", Phone: "+998901112233", Status: "active"},
		{DriverID: 2, FullName: "Sardor Karimov", Phone: "+998907778899", Status: "active"},
	}, nil
}

type countingSink struct {
	metrics.NopSink
	quotes []metrics.QuoteEvent
}

func (c *countingSink) RecordQuote(ev metrics.QuoteEvent) error {
	c.quotes = append(c.quotes, ev)
	return nil
}

type harness struct {
	engine *Engine
	geo    *mockGeocoder
	store  *fakeStore
	models *modelstore.MemoryStore
	sink   *countingSink
	price  *pricing.Model
}

func newHarness(t *testing.T, records []model.PriceRecord) *harness {
	t.Helper()
	h := &harness{
		geo:    &mockGeocoder{},
		store:  &fakeStore{prices: records},
		models: modelstore.NewMemoryStore(),
		sink:   &countingSink{},
	}
	h.price = pricing.New(h.models, nil)
	h.engine = NewEngine(Deps{
		Geocoder: h.geo,
		Regions:  region.NewCache(h.store, 0, nil, nil),
		Prices:   h.price,
		Loads:    loadcluster.New(h.models, nil),
		Drivers:  matching.NewMatcher(h.store, nil),
		Metrics:  h.sink,
	})
	return h
}

func toshkentAndijon(n int) []model.PriceRecord {
	out := make([]model.PriceRecord, n)
	for i := range out {
		out[i] = model.PriceRecord{Origin: "Toshkent", Destination: "Andijon", Price: 50000}
	}
	return out
}

func TestPredictAfterRetrain(t *testing.T) {
	h := newHarness(t, toshkentAndijon(10))
	h.geo.On("Geocode", mock.Anything, "Toshkent").Return(41.3, 69.2, nil)

	n, err := training.NewTrainer(h.store, h.price, nil, nil, nil, nil).Retrain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, n)

	q, err := h.engine.Predict(context.Background(), Request{From: "Toshkent", To: "Andijon", Weight: "1000", Volume: "10"})
	require.NoError(t, err)
	assert.InDelta(t, 50000, q.Price, 100)
	assert.Contains(t, []int{0, 1}, q.ClusterID)
	require.NotEmpty(t, q.Drivers)
	assert.Equal(t, "Ali Valiyev", q.Drivers[0].FullName)
	assert.LessOrEqual(t, len(q.Drivers), matching.Limit)

	require.Len(t, h.sink.quotes, 1)
	assert.Equal(t, metrics.OutcomeOK, h.sink.quotes[0].Outcome)
	assert.NotEmpty(t, h.sink.quotes[0].RequestID)
	assert.False(t, h.sink.quotes[0].Learned)
	h.geo.AssertExpectations(t)
}

func TestPredictUnknownRegion(t *testing.T) {
	h := newHarness(t, toshkentAndijon(3))
	h.geo.On("Geocode", mock.Anything, "Unknownistan").Return(10.0, 10.0, nil)

	_, err := h.engine.Predict(context.Background(), Request{From: "Unknownistan", To: "Andijon", Weight: "1000", Volume: "10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRegion)
	assert.True(t, IsValidation(err))
	assert.Equal(t, metrics.OutcomeInvalid, h.sink.quotes[0].Outcome)
	assert.Zero(t, h.models.Saves(modelstore.PriceModelID))
}

func TestPredictNormalizesCyrillicAndDistricts(t *testing.T) {
	h := newHarness(t, toshkentAndijon(3))
	h.geo.On("Geocode", mock.Anything, "Тошкент").Return(41.3, 69.2, nil)

	_, err := h.engine.Predict(context.Background(), Request{From: "Тошкент, Чилонзор", To: "ANDIJON", Weight: "500", Volume: "4"})
	require.NoError(t, err)
}

func TestPredictValidationOrder(t *testing.T) {
	h := newHarness(t, toshkentAndijon(1))
	h.geo.On("Geocode", mock.Anything, "Nowhere").Return(0.0, 0.0, source.ErrNotFound)

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"missing wins over invalid", Request{From: "Toshkent", Weight: "abc", Volume: "1"}, ErrMissingParameter},
		{"missing volume", Request{From: "Toshkent", To: "Andijon", Weight: "1"}, ErrMissingParameter},
		{"invalid weight", Request{From: "Toshkent", To: "Andijon", Weight: "abc", Volume: "1"}, ErrInvalidNumber},
		{"negative volume", Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "-2"}, ErrInvalidNumber},
		{"invalid price", Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "2", ActualPrice: "cheap"}, ErrInvalidNumber},
		{"not geocodable", Request{From: "Nowhere", To: "Unknownistan", Weight: "1", Volume: "2"}, ErrRegionNotGeocodable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Predict(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestPredictGeocoderOutage(t *testing.T) {
	h := newHarness(t, toshkentAndijon(1))
	h.geo.On("Geocode", mock.Anything, "Toshkent").Return(0.0, 0.0, errors.New("timeout"))

	_, err := h.engine.Predict(context.Background(), Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "1"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	var up *UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, ServiceGeocoder, up.Service)
	assert.Equal(t, metrics.OutcomeUpstream, h.sink.quotes[0].Outcome)
}

func TestPredictDatabaseOutage(t *testing.T) {
	h := newHarness(t, toshkentAndijon(1))
	h.geo.On("Geocode", mock.Anything, "Toshkent").Return(41.3, 69.2, nil)
	h.store.driveErr = errors.New("connection reset")

	_, err := h.engine.Predict(context.Background(), Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "1"})
	var up *UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, ServiceDatabase, up.Service)

	h2 := newHarness(t, nil)
	h2.store.priceErr = errors.New("connection reset")
	h2.geo.On("Geocode", mock.Anything, "Toshkent").Return(41.3, 69.2, nil)
	_, err = h2.engine.Predict(context.Background(), Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "1"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestPredictObservedPriceUpdatesModel(t *testing.T) {
	h := newHarness(t, toshkentAndijon(1))
	h.geo.On("Geocode", mock.Anything, "Toshkent").Return(41.3, 69.2, nil)
	req := Request{From: "Toshkent", To: "Andijon", Weight: "1000", Volume: "10"}

	before, err := h.engine.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, h.models.Saves(modelstore.PriceModelID))

	req.ActualPrice = "50000"
	learned, err := h.engine.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, learned.Price, before.Price)
	assert.LessOrEqual(t, learned.Price, 50000)
	assert.Equal(t, 1, h.models.Saves(modelstore.PriceModelID))
	assert.True(t, h.sink.quotes[1].Learned)

	req.ActualPrice = "null"
	after, err := h.engine.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, learned.Price, after.Price)
	assert.Equal(t, 1, h.models.Saves(modelstore.PriceModelID))
}

func TestPredictEmptyFleet(t *testing.T) {
	h := newHarness(t, toshkentAndijon(1))
	h.geo.On("Geocode", mock.Anything, "Toshkent").Return(41.3, 69.2, nil)
	e := NewEngine(Deps{
		Geocoder: h.geo,
		Regions:  region.NewCache(h.store, 0, nil, nil),
		Prices:   h.price,
		Loads:    loadcluster.New(h.models, nil),
		Drivers:  matching.NewMatcher(emptyFleet{}, nil),
	})
	q, err := e.Predict(context.Background(), Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "1"})
	require.NoError(t, err)
	assert.NotNil(t, q.Drivers)
	assert.Empty(t, q.Drivers)
}

type emptyFleet struct{}

func (emptyFleet) DriverLocations(context.Context) ([]model.DriverLocation, error) { return nil, nil }
func (emptyFleet) DriverVehicles(context.Context) ([]model.DriverVehicle, error)   { return nil, nil }
func (emptyFleet) DriverProfiles(context.Context) ([]model.DriverProfile, error)   { return nil, nil }
