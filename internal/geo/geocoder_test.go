package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestClientResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Brooklyn, NY", r.URL.Query().Get("q"))
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"40.6782","lon":"-73.9442"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "foodbridge-test/1.0", time.Second)

	coords, err := client.Resolve(context.Background(), "Brooklyn, NY")
	require.NoError(t, err)
	require.InDelta(t, 40.6782, coords.Latitude, 1e-6)
	require.InDelta(t, -73.9442, coords.Longitude, 1e-6)
}

func TestClientResolveNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "foodbridge-test/1.0", time.Second)

	_, err := client.Resolve(context.Background(), "Nowhere At All")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestClientResolveErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"not":"a list"}`))
			},
		},
		{
			name: "malformed coordinates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`[{"lat":"not-a-number","lon":"0"}]`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, "foodbridge-test/1.0", time.Second)

			_, err := client.Resolve(context.Background(), "Brooklyn, NY")

			var lookupErr *LookupError
			require.ErrorAs(t, err, &lookupErr)
			require.Equal(t, tt.wantStatus, lookupErr.StatusCode)
		})
	}
}

func newTestBadger(t *testing.T) *badger.DB {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

// countingGeocoder counts Resolve calls and delegates to a fixed result.
type countingGeocoder struct {
	calls  atomic.Int64
	coords Coordinates
	err    error
}

func (c *countingGeocoder) Resolve(context.Context, string) (Coordinates, error) {
	c.calls.Add(1)

	if c.err != nil {
		return Coordinates{}, c.err
	}

	return c.coords, nil
}

func TestCacheHitSkipsInnerGeocoder(t *testing.T) {
	inner := &countingGeocoder{coords: Coordinates{Latitude: 40.7, Longitude: -74.0}}
	cache := NewCache(inner, newTestBadger(t), time.Hour, nil)
	ctx := context.Background()

	first, err := cache.Resolve(ctx, "Brooklyn, NY")
	require.NoError(t, err)
	require.Equal(t, inner.coords, first)
	require.EqualValues(t, 1, inner.calls.Load())

	second, err := cache.Resolve(ctx, "Brooklyn, NY")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, inner.calls.Load(), "second lookup must be served from cache")

	// Normalization: formatting differences share the cache entry.
	third, err := cache.Resolve(ctx, "  brooklyn,   ny ")
	require.NoError(t, err)
	require.Equal(t, first, third)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	inner := &countingGeocoder{err: ErrNoMatch}
	cache := NewCache(inner, newTestBadger(t), time.Hour, nil)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "Nowhere At All")
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = cache.Resolve(ctx, "Nowhere At All")
	require.ErrorIs(t, err, ErrNoMatch)
	require.EqualValues(t, 2, inner.calls.Load(), "failures must not be cached")
}

func TestFallbackOnFailure(t *testing.T) {
	fallbackCoords := Coordinates{Latitude: 40.7128, Longitude: -74.0060}
	inner := &countingGeocoder{err: errors.New("nominatim down")}
	fallback := NewFallback(inner, fallbackCoords, nil)

	coords, err := fallback.Resolve(context.Background(), "Brooklyn, NY")
	require.NoError(t, err, "fallback absorbs resolution failures")
	require.Equal(t, fallbackCoords, coords)

	// Deterministic: the same fixed coordinate every time.
	again, err := fallback.Resolve(context.Background(), "Some Other Address")
	require.NoError(t, err)
	require.Equal(t, fallbackCoords, again)
}

func TestFallbackPassesThroughSuccess(t *testing.T) {
	resolved := Coordinates{Latitude: 40.6782, Longitude: -73.9442}
	inner := &countingGeocoder{coords: resolved}
	fallback := NewFallback(inner, Coordinates{Latitude: 1, Longitude: 1}, nil)

	coords, err := fallback.Resolve(context.Background(), "Brooklyn, NY")
	require.NoError(t, err)
	require.Equal(t, resolved, coords)
}
