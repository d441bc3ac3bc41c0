package modelstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/kilianp07/freightmatch/core/modelstore"
	"github.com/kilianp07/freightmatch/core/pricing"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Unix(100, 0) }

	_, err := s.Load(ctx, core.PriceModelID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Save(ctx, core.PriceModelID, []byte("v1")))
	s.now = func() time.Time { return time.Unix(200, 0) }
	require.NoError(t, s.Save(ctx, core.PriceModelID, []byte("v2")))

	blob, err := s.Load(ctx, core.PriceModelID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), blob)

	ts, err := s.Updated(ctx, core.PriceModelID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), ts.Unix())

	_, err = s.Updated(ctx, core.ScalerID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	m := pricing.New(s, nil)
	learned, err := m.Observe(ctx, 1, 0, 50000)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := pricing.New(s, nil).Predict(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, learned, got)
}
