package pollen

// Thresholds maps a pollen type to the upper count bounds of the low,
// moderate and high severity bands. A zero count is "none"; anything above
// the last bound is "very-high". The table is data, not code: regional
// deployments can override it, and it is only consulted when the upstream
// payload does not carry its own level.
type Thresholds map[Type][3]float64

// DefaultThresholds returns the particles-per-cubic-meter bounds published
// by the pollen radar sites themselves.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PollenTree:  {95, 207, 703},
		PollenGrass: {29, 60, 341},
		PollenWeed:  {20, 77, 266},
	}
}

// Level derives the severity category for a count. The mapping is
// deterministic and monotonically non-decreasing in the count.
func (t Thresholds) Level(typ Type, count float64) Level {
	if count <= 0 {
		return LevelNone
	}
	bounds, ok := t[typ]
	if !ok {
		// Types without a configured row are never measured upstream.
		return LevelNone
	}
	switch {
	case count <= bounds[0]:
		return LevelLow
	case count <= bounds[1]:
		return LevelModerate
	case count <= bounds[2]:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}
