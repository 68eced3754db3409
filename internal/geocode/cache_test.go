package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/leaguely/internal/geo"
	"github.com/codr1/leaguely/internal/testutil"
)

type countingGeocoder struct {
	calls int
	coord geo.Coordinate
	err   error
}

func (c *countingGeocoder) Geocode(context.Context, string) (geo.Coordinate, error) {
	c.calls++
	return c.coord, c.err
}

func TestCachedGeocoderServesRepeatLookups(t *testing.T) {
	ctx := context.Background()
	upstream := &countingGeocoder{coord: geo.Coordinate{Lat: 40.7, Lon: -74}}
	cached := NewCachedGeocoder(upstream, testutil.NewTestDB(t), time.Hour)

	for _, address := range []string{"New York, NY", "  new   york, ny", "NEW YORK, NY"} {
		coord, err := cached.Geocode(ctx, address)
		if err != nil {
			t.Fatalf("Geocode(%q): %v", address, err)
		}
		if coord != upstream.coord {
			t.Fatalf("unexpected coordinate %+v", coord)
		}
	}
	if upstream.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", upstream.calls)
	}
}

func TestCachedGeocoderExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	upstream := &countingGeocoder{coord: geo.Coordinate{Lat: 1, Lon: 2}}
	cached := NewCachedGeocoder(upstream, testutil.NewTestDB(t), time.Hour)
	cached.now = func() time.Time { return now }

	if _, err := cached.Geocode(ctx, "Hoboken, NJ"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Minute)
	if _, err := cached.Geocode(ctx, "Hoboken, NJ"); err != nil {
		t.Fatal(err)
	}
	if upstream.calls != 1 {
		t.Fatalf("expected cache hit within ttl, got %d calls", upstream.calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cached.Geocode(ctx, "Hoboken, NJ"); err != nil {
		t.Fatal(err)
	}
	if upstream.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", upstream.calls)
	}
}

func TestCachedGeocoderDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	upstream := &countingGeocoder{err: ErrAddressNotFound}
	cached := NewCachedGeocoder(upstream, testutil.NewTestDB(t), time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := cached.Geocode(ctx, "Atlantis"); !errors.Is(err, ErrAddressNotFound) {
			t.Fatalf("expected ErrAddressNotFound, got %v", err)
		}
	}
	if upstream.calls != 2 {
		t.Fatalf("expected misses to reach upstream, got %d calls", upstream.calls)
	}

	if _, err := cached.Geocode(ctx, " "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("expected ErrEmptyAddress, got %v", err)
	}
}

func TestCachedGeocoderPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	upstream := &countingGeocoder{coord: geo.Coordinate{Lat: 1, Lon: 2}}
	cached := NewCachedGeocoder(upstream, testutil.NewTestDB(t), 24*time.Hour)
	cached.now = func() time.Time { return now }

	if _, err := cached.Geocode(ctx, "old place"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(36 * time.Hour)
	if _, err := cached.Geocode(ctx, "new place"); err != nil {
		t.Fatal(err)
	}

	n, err := cached.Prune(ctx, now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned row, got %d", n)
	}
}

func TestStaticGeocoder(t *testing.T) {
	g := DemoGeocoder()
	coord, err := g.Geocode(context.Background(), "  Hoboken,   NJ ")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if coord.Lat != 40.7440 {
		t.Fatalf("unexpected coordinate %+v", coord)
	}
	if _, err := g.Geocode(context.Background(), "Gotham"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := map[string]string{
		"  New   York , NY ": "new york , ny",
		"":                   "",
		"\tBrooklyn\n":       "brooklyn",
	}
	for in, want := range tests {
		if got := NormalizeAddress(in); got != want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
