package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/prediction"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/training"
	"github.com/kilianp07/freightmatch/infra/logger"
)

func init() { gin.SetMode(gin.TestMode) }

type mockPredictor struct{ mock.Mock }

func (m *mockPredictor) Predict(ctx context.Context, req prediction.Request) (model.Quote, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Quote), args.Error(1)
}

type stubRetrainer struct {
	n   int
	err error
}

func (s stubRetrainer) Retrain(context.Context) (int, error) { return s.n, s.err }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

var sampleQuote = model.Quote{
	Price:     50000,
	ClusterID: 1,
	Drivers: []model.DriverSummary{
		{FullName: "Ali Valiyev", Phone: "+998901112233", TransportModel: "Isuzu", WeightCapacity: 1000, VolumeCapacity: 10, DistanceKm: 0},
	},
}

func TestPredictFromQuery(t *testing.T) {
	p := &mockPredictor{}
	want := prediction.Request{From: "Toshkent, Chilonzor", To: "Andijon", Weight: "1000", Volume: "10", ActualPrice: "52000"}
	p.On("Predict", mock.Anything, want).Return(sampleQuote, nil)
	r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

	rr := do(t, r, http.MethodGet, "/api/predict?from=Toshkent,+Chilonzor&to=Andijon&weight=1000&volume=10&actual_price=52000", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody(t, rr)
	assert.Equal(t, float64(50000), out["price"])
	assert.Equal(t, float64(1), out["cluster_id"])
	drivers := out["drivers"].([]any)
	require.Len(t, drivers, 1)
	d := drivers[0].(map[string]any)
	assert.Equal(t, "Ali Valiyev", d["fullname"])
	assert.Equal(t, "Isuzu", d["transport_model"])
	assert.Equal(t, float64(1000), d["transport_weight"])
	p.AssertExpectations(t)
}

func TestPredictFromJSONBody(t *testing.T) {
	p := &mockPredictor{}
	want := prediction.Request{From: "Toshkent", To: "Andijon", Weight: "1000", Volume: "10.5"}
	p.On("Predict", mock.Anything, want).Return(sampleQuote, nil)
	r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

	rr := do(t, r, http.MethodPost, "/api/predict", `{"from":"Toshkent","to":"Andijon","weight":1000,"volume":"10.5","actual_price":null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p.AssertExpectations(t)
}

func TestPredictPostWithoutBodyUsesQuery(t *testing.T) {
	p := &mockPredictor{}
	want := prediction.Request{From: "Toshkent", To: "Andijon", Weight: "1", Volume: "2"}
	p.On("Predict", mock.Anything, want).Return(sampleQuote, nil)
	r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

	rr := do(t, r, http.MethodPost, "/api/predict?from=Toshkent&to=Andijon&weight=1&volume=2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	p.AssertExpectations(t)
}

func TestPredictMalformedJSON(t *testing.T) {
	p := &mockPredictor{}
	r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

	rr := do(t, r, http.MethodPost, "/api/predict", `{"from":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "malformed request", decodeBody(t, rr)["error"])
	p.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredictErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
		detail string
	}{
		{"missing", &prediction.ValidationError{Reason: prediction.ErrMissingParameter, Detail: "from"}, http.StatusBadRequest, "missing parameter", "from"},
		{"invalid number", &prediction.ValidationError{Reason: prediction.ErrInvalidNumber, Detail: "weight"}, http.StatusBadRequest, "invalid number", "weight"},
		{"not geocodable", &prediction.ValidationError{Reason: prediction.ErrRegionNotGeocodable}, http.StatusBadRequest, "region not geocodable", ""},
		{"unknown region", fmt.Errorf("quote: %w", &prediction.ValidationError{Reason: prediction.ErrUnknownRegion, Detail: "Нукус"}), http.StatusBadRequest, "unknown region", "Нукус"},
		{"geocoder", &prediction.UpstreamError{Service: prediction.ServiceGeocoder, Err: errors.New("timeout")}, http.StatusBadGateway, "geocoder unavailable", ""},
		{"database", &prediction.UpstreamError{Service: prediction.ServiceDatabase, Err: errors.New("refused")}, http.StatusServiceUnavailable, "database unavailable", ""},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockPredictor{}
			p.On("Predict", mock.Anything, mock.Anything).Return(model.Quote{}, tc.err)
			r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

			rr := do(t, r, http.MethodGet, "/api/predict", "")
			assert.Equal(t, tc.status, rr.Code)
			out := decodeBody(t, rr)
			assert.Equal(t, tc.body, out["error"])
			if tc.detail == "" {
				assert.NotContains(t, out, "detail")
			} else {
				assert.Equal(t, tc.detail, out["detail"])
			}
		})
	}
}

func TestRetrainEndpoint(t *testing.T) {
	cases := []struct {
		name   string
		r      stubRetrainer
		status int
	}{
		{"ok", stubRetrainer{n: 4}, http.StatusOK},
		{"no data", stubRetrainer{err: training.ErrNoData}, http.StatusConflict},
		{"database down", stubRetrainer{err: fmt.Errorf("load price records: %w", source.ErrUnavailable)}, http.StatusServiceUnavailable},
		{"other", stubRetrainer{err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(Deps{Predictor: &mockPredictor{}, Retrainer: tc.r, Log: logger.NopLogger{}})
			rr := do(t, r, http.MethodPost, "/api/retrain", "")
			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, float64(4), decodeBody(t, rr)["samples"])
			}
		})
	}
}

func TestRetrainRouteAbsentWithoutRetrainer(t *testing.T) {
	r := NewRouter(Deps{Predictor: &mockPredictor{}, Log: logger.NopLogger{}})
	rr := do(t, r, http.MethodPost, "/api/retrain", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	r := NewRouter(Deps{Predictor: &mockPredictor{}, Health: stubPinger{}, Log: logger.NopLogger{}})
	rr := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])

	r = NewRouter(Deps{Predictor: &mockPredictor{}, Health: stubPinger{err: errors.New("refused")}, Log: logger.NopLogger{}})
	rr = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decodeBody(t, rr)["status"])
}

func TestRateLimit(t *testing.T) {
	p := &mockPredictor{}
	p.On("Predict", mock.Anything, mock.Anything).Return(sampleQuote, nil)
	r := NewRouter(Deps{Predictor: p, Limits: RateLimit{PerSecond: 0.001, Burst: 1}, Log: logger.NopLogger{}})

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/predict", "").Code)
	rr := do(t, r, http.MethodGet, "/api/predict", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "").Code, "health is not limited")
}

func TestLimiterSweepsIdleVisitors(t *testing.T) {
	l := newLimiter(RateLimit{PerSecond: 1})
	start := l.lastSweep
	l.get("a", start)
	l.get("b", start.Add(5*l.cfg.IdleTTL/4))
	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "b")
	assert.Equal(t, 2, l.cfg.Burst)
}

func TestRequestMetrics(t *testing.T) {
	p := &mockPredictor{}
	p.On("Predict", mock.Anything, mock.Anything).Return(sampleQuote, nil)
	reg := prometheus.NewRegistry()
	r := NewRouter(Deps{Predictor: p, Registerer: reg, Log: logger.NopLogger{}})

	do(t, r, http.MethodGet, "/api/predict", "")
	do(t, r, http.MethodGet, "/nope", "")

	n, err := testutil.GatherAndCount(reg, "freight_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	expected := `
# HELP freight_http_requests_total HTTP requests by route, method and status code.
# TYPE freight_http_requests_total counter
freight_http_requests_total{code="200",method="GET",route="/api/predict"} 1
freight_http_requests_total{code="404",method="GET",route="unmatched"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "freight_http_requests_total"))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	p := &mockPredictor{}
	p.On("Predict", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("kaboom") })
	r := NewRouter(Deps{Predictor: p, Log: logger.NopLogger{}})

	rr := do(t, r, http.MethodGet, "/api/predict", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decodeBody(t, rr)["error"])
}
