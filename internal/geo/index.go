package geo

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
)

const (
	// milesPerDegreeLat is the arc length of one degree of latitude.
	milesPerDegreeLat = 2 * math.Pi * EarthRadiusMiles / 360
	// pointSide is the edge length of the tiny rectangle stored per point.
	pointSide = 1e-9
	// boxPadMiles covers distances that round down onto the radius.
	boxPadMiles = 0.1
)

type indexEntry struct {
	rect  rtreego.Rect
	pos   int
	coord Coordinate
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

// Index answers radius queries over a fixed set of entities using an R-tree
// bounding-box prefilter followed by exact distance checks. Results match
// SortByDistance with WithMaxRadius for the same inputs.
type Index[T Locatable] struct {
	items     []T
	tree      *rtreego.Rtree
	stray     []*indexEntry // located but outside geographic bounds
	unlocated []int
}

// NewIndex builds an index over items. The slice is retained, not copied.
func NewIndex[T Locatable](items []T) *Index[T] {
	idx := &Index[T]{
		items: items,
		tree:  rtreego.NewTree(2, 2, 16),
	}

	for pos, item := range items {
		coord, ok := item.Coordinate()
		if !ok {
			idx.unlocated = append(idx.unlocated, pos)
			continue
		}
		entry := &indexEntry{pos: pos, coord: coord}
		if !coord.Valid() {
			idx.stray = append(idx.stray, entry)
			continue
		}
		rect, err := rtreego.NewRect(rtreego.Point{coord.Lon, coord.Lat}, []float64{pointSide, pointSide})
		if err != nil {
			idx.stray = append(idx.stray, entry)
			continue
		}
		entry.rect = rect
		idx.tree.Insert(entry)
	}

	return idx
}

// Len returns the number of indexed items, located or not.
func (idx *Index[T]) Len() int {
	return len(idx.items)
}

// Nearby returns items within radius miles of ref, nearest first, followed by
// every item that has no coordinate.
func (idx *Index[T]) Nearby(ref Coordinate, radius float64) []Ranked[T] {
	if !ref.Valid() || math.IsNaN(radius) {
		return SortByDistance(idx.items, &ref, WithMaxRadius(radius))
	}

	type hit struct {
		pos      int
		distance float64
	}

	var hits []hit
	consider := func(e *indexEntry) {
		d := CalculateDistance(ref, e.coord)
		if d > radius {
			return
		}
		hits = append(hits, hit{pos: e.pos, distance: d})
	}

	seen := make(map[int]struct{})
	for _, box := range searchBoxes(ref, radius) {
		for _, s := range idx.tree.SearchIntersect(box) {
			e := s.(*indexEntry)
			if _, ok := seen[e.pos]; ok {
				continue
			}
			seen[e.pos] = struct{}{}
			consider(e)
		}
	}
	for _, e := range idx.stray {
		consider(e)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].pos < hits[j].pos
	})

	out := make([]Ranked[T], 0, len(hits)+len(idx.unlocated))
	for _, h := range hits {
		d := h.distance
		out = append(out, Ranked[T]{Item: idx.items[h.pos], Distance: &d})
	}
	for _, pos := range idx.unlocated {
		out = append(out, Ranked[T]{Item: idx.items[pos]})
	}
	return out
}

// searchBoxes returns the lon/lat rectangles that together contain every point
// within radius miles of ref. Boxes crossing the antimeridian are split.
func searchBoxes(ref Coordinate, radius float64) []rtreego.Rect {
	if radius < 0 {
		radius = 0
	}
	latDelta := (radius + boxPadMiles) * 1.01 / milesPerDegreeLat

	minLat := math.Max(-90, ref.Lat-latDelta)
	maxLat := math.Min(90, ref.Lat+latDelta)

	maxAbsLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	lonDelta := 360.0
	if maxAbsLat < 89.9 {
		lonDelta = latDelta / math.Cos(toRadians(maxAbsLat))
	}

	if lonDelta >= 180 {
		return []rtreego.Rect{mustRect(-180, minLat, 180, maxLat)}
	}

	minLon := ref.Lon - lonDelta
	maxLon := ref.Lon + lonDelta
	switch {
	case minLon < -180:
		return []rtreego.Rect{
			mustRect(-180, minLat, maxLon, maxLat),
			mustRect(minLon+360, minLat, 180, maxLat),
		}
	case maxLon > 180:
		return []rtreego.Rect{
			mustRect(minLon, minLat, 180, maxLat),
			mustRect(-180, minLat, maxLon-360, maxLat),
		}
	default:
		return []rtreego.Rect{mustRect(minLon, minLat, maxLon, maxLat)}
	}
}

// mustRect builds a rectangle from its corners, padding each side so that
// points lying on the border still intersect it.
func mustRect(minLon, minLat, maxLon, maxLat float64) rtreego.Rect {
	const pad = 1e-6
	minLon -= pad
	minLat -= pad
	rect, err := rtreego.NewRect(
		rtreego.Point{minLon, minLat},
		[]float64{maxLon - minLon + pad, maxLat - minLat + pad},
	)
	if err != nil {
		panic("geo: invalid search box: " + err.Error())
	}
	return rect
}
