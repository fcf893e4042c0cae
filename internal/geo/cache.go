package geo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/zerohunger/foodbridge/internal/logctx"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

const cacheKeyPrefix = "geo:"

// Cache is a Geocoder decorator that memoizes successful resolutions in
// BadgerDB with a TTL. Cache failures degrade to the inner geocoder and are
// never surfaced to the caller; negative results are not cached.
type Cache struct {
	inner     Geocoder
	db        *badger.DB
	ttl       time.Duration
	telemetry *telemetry.Telemetry
}

// NewCache creates a caching geocoder around inner.
func NewCache(inner Geocoder, db *badger.DB, ttl time.Duration, tel *telemetry.Telemetry) *Cache {
	return &Cache{
		inner:     inner,
		db:        db,
		ttl:       ttl,
		telemetry: tel,
	}
}

func (c *Cache) Resolve(ctx context.Context, address string) (Coordinates, error) {
	logger := logctx.LoggerFromContext(ctx)
	key := cacheKey(address)

	if coords, ok := c.lookup(key); ok {
		c.recordGeocode("cache", "hit")

		return coords, nil
	}

	c.recordGeocode("cache", "miss")

	coords, err := c.inner.Resolve(ctx, address)
	if err != nil {
		c.recordGeocode("nominatim", "error")

		return Coordinates{}, err
	}

	c.recordGeocode("nominatim", "success")

	if err := c.store(key, coords); err != nil {
		// A failed cache write only costs a future lookup.
		logger.WarnContext(ctx, "failed to cache geocoding result", "err", err)
	}

	return coords, nil
}

func (c *Cache) lookup(key []byte) (Coordinates, bool) {
	var coords Coordinates

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &coords)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			// Treat a corrupt or unreadable entry as a miss.
			_ = c.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(key)
			})
		}

		return Coordinates{}, false
	}

	return coords, true
}

func (c *Cache) store(key []byte, coords Coordinates) error {
	data, err := json.Marshal(coords)
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(c.ttl)

		return txn.SetEntry(entry)
	})
}

func (c *Cache) recordGeocode(source, status string) {
	if c.telemetry != nil {
		c.telemetry.RecordGeocode(source, status)
	}
}

// cacheKey normalizes the address so trivial formatting differences share an
// entry.
func cacheKey(address string) []byte {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))

	return []byte(cacheKeyPrefix + normalized)
}
