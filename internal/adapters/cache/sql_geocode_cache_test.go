package cache

import (
	"context"
	"field-service-router/internal/adapters/repositories"
	"field-service-router/internal/domain"
	"field-service-router/internal/platform/db"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *SQLGeocodeCache {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repositories.InitSchema(context.Background(), conn))
	return NewSQLGeocodeCache(conn, db.DriverSQLite)
}

func TestGeocodeCacheRoundTrip(t *testing.T) {
	// build test data
	c := newCache(t)
	ctx := context.Background()
	require.NoError(t, c.PutMany(ctx, map[string]domain.Coordinates{
		"rua a, 1": {Lon: -46.63, Lat: -23.55},
		"rua b, 2": {Lon: -46.70, Lat: -23.60},
	}))

	// call the method under test
	got, err := c.GetMany(ctx, []string{"rua a, 1", "rua a, 1", " ", "unknown"})

	// verify behavior
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Coordinates{Lon: -46.63, Lat: -23.55}, got["rua a, 1"])
}

func TestGeocodeCacheOverwrites(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutMany(ctx, map[string]domain.Coordinates{"x": {Lon: 1, Lat: 1}}))
	require.NoError(t, c.PutMany(ctx, map[string]domain.Coordinates{"x": {Lon: 2, Lat: 3}}))

	got, err := c.GetMany(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Lon: 2, Lat: 3}, got["x"])
}

func TestGeocodeCacheRejectsInvalidEntries(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	err := c.PutMany(ctx, map[string]domain.Coordinates{"nan": {Lon: math.NaN(), Lat: 0}})
	require.ErrorIs(t, err, domain.ErrInvalidCoordinates)

	require.Error(t, c.PutMany(ctx, map[string]domain.Coordinates{"": {Lon: 0, Lat: 0}}))

	got, err := c.GetMany(ctx, []string{"nan"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGeocodeCacheEmptyInput(t *testing.T) {
	c := newCache(t)

	got, err := c.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, c.PutMany(context.Background(), nil))
}
