// Package pollen implements retrieval and normalization of pollen forecast
// data from the regional pollen radar services, plus the per-location update
// coordination that keeps cached snapshots fresh.
package pollen

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Pollen errors. Clients return these wrapped with %w so callers can
// classify a failure without parsing messages.
var (
	// ErrNetwork covers transport failures and timeouts. Transient.
	ErrNetwork = errors.New("pollen: upstream request failed")

	// ErrUpstreamStatus is returned for an HTTP error status from upstream.
	ErrUpstreamStatus = errors.New("pollen: upstream returned error status")

	// ErrUpstreamFormat is returned when the payload does not match the
	// expected schema. This usually means the unofficial API changed its
	// interface and the integration needs a code update.
	ErrUpstreamFormat = errors.New("pollen: unexpected upstream payload")

	// ErrUnsupportedLocation is a configuration error: the region/location
	// combination is not served by any endpoint family.
	ErrUnsupportedLocation = errors.New("pollen: unsupported location")

	// ErrRateLimited indicates the upstream throttled or blocked us.
	ErrRateLimited = errors.New("pollen: rate limited or blocked by upstream")

	// ErrNoSnapshot is returned when no refresh has ever succeeded.
	ErrNoSnapshot = errors.New("pollen: no snapshot available")
)

// Type represents a category of pollen.
type Type string

const (
	PollenTree  Type = "tree"
	PollenGrass Type = "grass"
	PollenWeed  Type = "weed"
)

// AllTypes returns all supported pollen types.
func AllTypes() []Type {
	return []Type{PollenTree, PollenGrass, PollenWeed}
}

// Level is the ordinal severity category derived from a pollen count.
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very-high"
)

// Rank returns the ordinal position of the level, for comparisons.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelModerate:
		return 2
	case LevelHigh:
		return 3
	case LevelVeryHigh:
		return 4
	default:
		return 0
	}
}

// ParseLevel maps an upstream level string to a Level.
// The bool reports whether the string named a known level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "none":
		return LevelNone, true
	case "low":
		return LevelLow, true
	case "moderate":
		return LevelModerate, true
	case "high":
		return LevelHigh, true
	case "very-high":
		return LevelVeryHigh, true
	default:
		return LevelNone, false
	}
}

// SpeciesDetail is a per-species breakdown entry when upstream provides one
// (e.g. "Birch", count 40, level low).
type SpeciesDetail struct {
	Name  string
	Count float64
	Level Level
}

// Reading is one pollen measurement for a specific type on a specific day.
type Reading struct {
	// Type is the pollen category.
	Type Type

	// Date is the forecast day, normalized to midnight UTC.
	Date time.Time

	// Count is the raw particle count. Nil when the upstream did not
	// measure this type for the region.
	Count *float64

	// Unit is the count's unit of measure as reported upstream.
	Unit string

	// Level is the derived or upstream-supplied severity category.
	Level Level

	// Species holds a per-species breakdown if available.
	Species []SpeciesDetail
}

// ForecastDays is the length of every normalized forecast window:
// today plus the next four days.
const ForecastDays = 5

// ForecastSet is an ordered forecast window for a single pollen type.
// Invariant: exactly ForecastDays readings, dates contiguous ascending,
// first date not after the current day.
type ForecastSet []Reading

// Today returns the reading for the first (current) day.
func (fs ForecastSet) Today() *Reading {
	if len(fs) == 0 {
		return nil
	}
	return &fs[0]
}

// Validate checks the forecast window invariant.
func (fs ForecastSet) Validate(now time.Time) error {
	if len(fs) != ForecastDays {
		return fmt.Errorf("%w: got %d readings, want %d", ErrUpstreamFormat, len(fs), ForecastDays)
	}
	if fs[0].Date.After(dayOf(now)) {
		return fmt.Errorf("%w: first reading %s is in the future", ErrUpstreamFormat, fs[0].Date.Format("2006-01-02"))
	}
	for i := 1; i < len(fs); i++ {
		if !fs[i].Date.Equal(fs[i-1].Date.AddDate(0, 0, 1)) {
			return fmt.Errorf("%w: readings %d and %d are not on contiguous dates", ErrUpstreamFormat, i-1, i)
		}
	}
	return nil
}

// Forecasts is the normalized result of a single client fetch: one forecast
// window per pollen type plus the raw upstream payload for diagnostics.
type Forecasts struct {
	Tree  ForecastSet
	Grass ForecastSet
	Weed  ForecastSet

	// Raw is the undecoded upstream response body.
	Raw []byte
}

// Set returns the forecast window for the given pollen type.
func (f *Forecasts) Set(typ Type) ForecastSet {
	switch typ {
	case PollenTree:
		return f.Tree
	case PollenGrass:
		return f.Grass
	default:
		return f.Weed
	}
}

// Validate checks the window invariant on all three sets.
func (f *Forecasts) Validate(now time.Time) error {
	for _, typ := range AllTypes() {
		if err := f.Set(typ).Validate(now); err != nil {
			return fmt.Errorf("%s: %w", typ, err)
		}
	}
	return nil
}

// Snapshot is the coordinator's unit of cached state. It is never mutated
// after publication; consumers receive it as a read-only view and a new
// snapshot atomically replaces the old one on each successful refresh.
type Snapshot struct {
	Tree  ForecastSet
	Grass ForecastSet
	Weed  ForecastSet

	// UpdatedAt is when the refresh that produced this snapshot succeeded.
	UpdatedAt time.Time

	// Raw is the upstream payload the snapshot was decoded from.
	Raw []byte
}

// Set returns the forecast window for the given pollen type.
func (s *Snapshot) Set(typ Type) ForecastSet {
	switch typ {
	case PollenTree:
		return s.Tree
	case PollenGrass:
		return s.Grass
	default:
		return s.Weed
	}
}

// NormalizeSet builds a valid forecast window from whatever per-day readings
// an endpoint family produced. Readings are ordered by date and fitted to the
// window starting at the current day: a missing day is filled by carrying the
// nearest earlier reading forward (some upstreams publish fewer than five
// days), surplus days are dropped.
func NormalizeSet(typ Type, readings []Reading, now time.Time) (ForecastSet, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no %s readings", ErrUpstreamFormat, typ)
	}

	in := make([]Reading, len(readings))
	copy(in, readings)
	for i := range in {
		in[i].Type = typ
		in[i].Date = dayOf(in[i].Date)
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Date.Before(in[j].Date) })

	out := make(ForecastSet, 0, ForecastDays)
	base := dayOf(now)
	idx := 0
	last := in[0]
	for d := 0; d < ForecastDays; d++ {
		target := base.AddDate(0, 0, d)
		for idx < len(in) && in[idx].Date.Before(target) {
			last = in[idx]
			idx++
		}
		r := last
		if idx < len(in) && in[idx].Date.Equal(target) {
			r = in[idx]
			last = in[idx]
			idx++
		}
		r.Date = target
		out = append(out, r)
	}
	return out, nil
}

// dayOf truncates a timestamp to midnight UTC.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
