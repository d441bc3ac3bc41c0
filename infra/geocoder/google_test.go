package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightmatch/core/source"
)

func googleServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, geocodePath, r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "uz", r.URL.Query().Get("region"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGoogleClientOK(t *testing.T) {
	srv, _ := googleServer(t, http.StatusOK, `{"status":"OK","results":[
		{"geometry":{"location":{"lat":41.2995,"lng":69.2401}}},
		{"geometry":{"location":{"lat":1,"lng":1}}}]}`)
	c := NewGoogleClient(Options{APIKey: "secret", BaseURL: srv.URL + "/", Region: "uz"})

	lat, lng, err := c.Geocode(context.Background(), "Toshkent")
	require.NoError(t, err)
	assert.Equal(t, 41.2995, lat)
	assert.Equal(t, 69.2401, lng)
}

func TestGoogleClientZeroResults(t *testing.T) {
	srv, _ := googleServer(t, http.StatusOK, `{"status":"ZERO_RESULTS","results":[]}`)
	c := NewGoogleClient(Options{APIKey: "secret", BaseURL: srv.URL, Region: "uz"})
	_, _, err := c.Geocode(context.Background(), "Unknownistan")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestGoogleClientOutages(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"denied":      {http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key"}`},
		"server":      {http.StatusBadGateway, `oops`},
		"bad payload": {http.StatusOK, `{`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := googleServer(t, tc.status, tc.body)
			c := NewGoogleClient(Options{APIKey: "secret", BaseURL: srv.URL, Region: "uz"})
			_, _, err := c.Geocode(context.Background(), "Toshkent")
			require.Error(t, err)
			assert.NotErrorIs(t, err, source.ErrNotFound)
		})
	}
}

func TestGoogleClientRateLimitHonoursContext(t *testing.T) {
	srv, calls := googleServer(t, http.StatusOK, `{"status":"OK","results":[{"geometry":{"location":{"lat":1,"lng":2}}}]}`)
	c := NewGoogleClient(Options{APIKey: "secret", BaseURL: srv.URL, Region: "uz", RatePerSecond: 0.001, Burst: 1})

	_, _, err := c.Geocode(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = c.Geocode(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
