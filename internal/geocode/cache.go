package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/db"
	"github.com/codr1/leaguely/internal/geo"
)

// CachedGeocoder serves repeat lookups from the geocode_cache table and falls
// through to the wrapped geocoder on a miss. Misses are not cached.
type CachedGeocoder struct {
	next     Geocoder
	database *db.DB
	ttl      time.Duration
	now      func() time.Time
}

func NewCachedGeocoder(next Geocoder, database *db.DB, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		next:     next,
		database: database,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return geo.Coordinate{}, ErrEmptyAddress
	}

	coord, ok, err := c.lookup(ctx, key)
	if err != nil {
		// A broken cache should not block resolution.
		log.Ctx(ctx).Warn().Err(err).Str("address", key).Msg("Geocode cache lookup failed")
	}
	if ok {
		return coord, nil
	}

	coord, err = c.next.Geocode(ctx, address)
	if err != nil {
		return geo.Coordinate{}, err
	}

	if err := c.store(ctx, key, coord); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("address", key).Msg("Geocode cache write failed")
	}
	return coord, nil
}

func (c *CachedGeocoder) lookup(ctx context.Context, key string) (geo.Coordinate, bool, error) {
	var (
		coord     geo.Coordinate
		createdAt int64
	)
	err := c.database.QueryRowContext(ctx,
		`SELECT lat, lon, created_at FROM geocode_cache WHERE address = ?`, key,
	).Scan(&coord.Lat, &coord.Lon, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Coordinate{}, false, nil
	}
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("query geocode cache: %w", err)
	}
	if c.expired(createdAt, c.now()) {
		return geo.Coordinate{}, false, nil
	}
	return coord, true, nil
}

func (c *CachedGeocoder) store(ctx context.Context, key string, coord geo.Coordinate) error {
	_, err := c.database.ExecContext(ctx, `
		INSERT INTO geocode_cache (address, lat, lon, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET lat = excluded.lat, lon = excluded.lon, created_at = excluded.created_at`,
		key, coord.Lat, coord.Lon, c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert geocode cache: %w", err)
	}
	return nil
}

// Prune deletes entries older than the TTL as of now. A non-positive TTL
// keeps entries forever.
func (c *CachedGeocoder) Prune(ctx context.Context, now time.Time) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.database.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE created_at < ?`, now.Add(-c.ttl).UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune geocode cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *CachedGeocoder) expired(createdAt int64, now time.Time) bool {
	if c.ttl <= 0 {
		return false
	}
	return time.Unix(0, createdAt).Before(now.Add(-c.ttl))
}
