package geo

import "sort"

// Ranked pairs an entity with its distance from a reference point.
// Distance is nil when no distance was computed for the entity.
type Ranked[T any] struct {
	Item     T        `json:"item"`
	Distance *float64 `json:"distanceMiles,omitempty"`
}

// HasDistance reports whether a distance was attached.
func (r Ranked[T]) HasDistance() bool {
	return r.Distance != nil
}

type sortOptions struct {
	maxRadius    float64
	hasMaxRadius bool
}

// SortOption tunes SortByDistance.
type SortOption func(*sortOptions)

// WithMaxRadius drops located items farther than miles from the reference.
func WithMaxRadius(miles float64) SortOption {
	return func(o *sortOptions) {
		o.maxRadius = miles
		o.hasMaxRadius = true
	}
}

// SortByDistance orders items nearest first relative to ref.
//
// With a nil ref the items come back in input order with no distances and no
// filtering. Otherwise located items get a distance, items beyond the max
// radius are removed, and the result is sorted ascending by distance with all
// unlocated items after the located ones. Equal distances and the unlocated
// tail keep their input order. The input slice is not modified.
func SortByDistance[T Locatable](items []T, ref *Coordinate, opts ...SortOption) []Ranked[T] {
	out := make([]Ranked[T], 0, len(items))
	if ref == nil {
		for _, item := range items {
			out = append(out, Ranked[T]{Item: item})
		}
		return out
	}

	var o sortOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, item := range items {
		coord, ok := item.Coordinate()
		if !ok {
			out = append(out, Ranked[T]{Item: item})
			continue
		}
		d := CalculateDistance(*ref, coord)
		if o.hasMaxRadius && d > o.maxRadius {
			continue
		}
		out = append(out, Ranked[T]{Item: item, Distance: &d})
	}

	sortRanked(out)
	return out
}

func sortRanked[T any](ranked []Ranked[T]) {
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := ranked[i].Distance, ranked[j].Distance
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
}
