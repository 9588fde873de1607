package pollen

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Region identifies a supported country/locale and, through it, the upstream
// endpoint family and request shape to use.
type Region string

const (
	RegionNL Region = "nl"
	RegionUK Region = "uk" // covers UK and Ireland
	RegionFR Region = "fr"
	RegionIT Region = "it"
	RegionUS Region = "us"
)

// AllRegions returns the supported regions.
func AllRegions() []Region {
	return []Region{RegionNL, RegionUK, RegionFR, RegionIT, RegionUS}
}

// ParseRegion maps a region string to a Region, case-insensitively.
// "ie" is accepted as an alias for the UK/IE endpoint.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nl":
		return RegionNL, nil
	case "uk", "ie":
		return RegionUK, nil
	case "fr":
		return RegionFR, nil
	case "it":
		return RegionIT, nil
	case "us":
		return RegionUS, nil
	default:
		return "", fmt.Errorf("%w: unknown region %q", ErrUnsupportedLocation, s)
	}
}

// Legacy reports whether the region is served by the legacy endpoint family.
// Only the US still is; its schema is incompatible with the current family.
func (r Region) Legacy() bool {
	return r == RegionUS
}

// DisplayName returns the human-readable country name for the region.
func (r Region) DisplayName() string {
	switch r {
	case RegionNL:
		return "Netherlands"
	case RegionUK:
		return "United Kingdom & Ireland"
	case RegionFR:
		return "France"
	case RegionIT:
		return "Italy"
	case RegionUS:
		return "United States"
	default:
		return string(r)
	}
}

// Location is an immutable, configure-time description of where to fetch
// pollen data for. It is validated once when configured and never re-checked
// per refresh.
type Location struct {
	// ID uniquely identifies the configured location.
	ID string `validate:"required"`

	// Region selects the endpoint family and request shape.
	Region Region `validate:"required"`

	// Name is the free-text display name chosen by the user.
	Name string `validate:"required,max=120"`

	// Latitude and Longitude of the location.
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`

	// Postal is an optional ZIP code, accepted only for the legacy (US)
	// family as an alternative to coordinates.
	Postal string `validate:"omitempty,max=10"`
}

var validate = validator.New()

// Validate checks the location at configuration time. Invalid configurations
// are rejected here rather than discovered on the first refresh.
func (l Location) Validate() error {
	if _, err := ParseRegion(string(l.Region)); err != nil {
		return err
	}
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedLocation, err)
	}
	if l.Postal != "" && !l.Region.Legacy() {
		return fmt.Errorf("%w: postal codes are only supported for region %s", ErrUnsupportedLocation, RegionUS)
	}
	if l.Postal == "" && l.Latitude == 0 && l.Longitude == 0 {
		return fmt.Errorf("%w: coordinates or a postal code are required", ErrUnsupportedLocation)
	}
	return nil
}

// Position renders the coordinates as a single identifier string.
func (l Location) Position() string {
	return fmt.Sprintf("%gx%g", l.Latitude, l.Longitude)
}
