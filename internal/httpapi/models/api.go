package models

import (
	"time"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// CreateLocationRequest is the body of POST /v1/locations.
type CreateLocationRequest struct {
	Region    string  `json:"region" validate:"required"`
	Name      string  `json:"name" validate:"required,max=120"`
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
	Postal    string  `json:"postal,omitempty" validate:"omitempty,max=10"`
}

// LocationResponse describes one configured location.
type LocationResponse struct {
	ID        string  `json:"id"`
	Region    string  `json:"region"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Postal    string  `json:"postal,omitempty"`
	Provider  string  `json:"provider"`
}

// SpeciesResponse is one per-species breakdown entry.
type SpeciesResponse struct {
	Name  string  `json:"name"`
	Count float64 `json:"count"`
	Level string  `json:"level"`
}

// ReadingResponse is one day of one pollen type.
type ReadingResponse struct {
	Date    string            `json:"date"`
	Count   *float64          `json:"count"`
	Unit    string            `json:"unit"`
	Level   string            `json:"level"`
	Species []SpeciesResponse `json:"species,omitempty"`
}

// SnapshotResponse is the full five-day view for a location.
type SnapshotResponse struct {
	LocationID       string            `json:"locationId"`
	Tree             []ReadingResponse `json:"tree"`
	Grass            []ReadingResponse `json:"grass"`
	Weed             []ReadingResponse `json:"weed"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Stale            bool              `json:"stale"`
	UnavailableSince *time.Time        `json:"unavailableSince,omitempty"`
}

// DiagnosticsResponse is the troubleshooting view for a location.
type DiagnosticsResponse struct {
	Location            LocationResponse `json:"location"`
	Raw                 string           `json:"raw,omitempty"`
	LastError           string           `json:"lastError,omitempty"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	Degraded            bool             `json:"degraded"`
	LastSuccess         *time.Time       `json:"lastSuccess,omitempty"`
	LastAttempt         *time.Time       `json:"lastAttempt,omitempty"`
}

// LocationListResponse wraps the configured location list.
type LocationListResponse struct {
	Locations []LocationResponse `json:"locations"`
	Count     int                `json:"count"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Locations int       `json:"locations"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLocationResponse converts a domain location.
func NewLocationResponse(loc pollen.Location, provider string) LocationResponse {
	return LocationResponse{
		ID:        loc.ID,
		Region:    string(loc.Region),
		Name:      loc.Name,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Postal:    loc.Postal,
		Provider:  provider,
	}
}

// NewReadingResponses converts one normalized forecast set.
func NewReadingResponses(set pollen.ForecastSet) []ReadingResponse {
	out := make([]ReadingResponse, 0, len(set))
	for _, r := range set {
		rr := ReadingResponse{
			Date:  r.Date.Format("2006-01-02"),
			Count: r.Count,
			Unit:  r.Unit,
			Level: string(r.Level),
		}
		for _, s := range r.Species {
			rr.Species = append(rr.Species, SpeciesResponse{
				Name:  s.Name,
				Count: s.Count,
				Level: string(s.Level),
			})
		}
		out = append(out, rr)
	}
	return out
}

// NewSnapshotResponse converts a coordinator state into the wire view. The
// caller guarantees st.Snapshot is non-nil.
func NewSnapshotResponse(locationID string, st pollen.State) SnapshotResponse {
	resp := SnapshotResponse{
		LocationID: locationID,
		Tree:       NewReadingResponses(st.Snapshot.Tree),
		Grass:      NewReadingResponses(st.Snapshot.Grass),
		Weed:       NewReadingResponses(st.Snapshot.Weed),
		UpdatedAt:  st.Snapshot.UpdatedAt,
		Stale:      st.Stale,
	}
	if !st.UnavailableSince.IsZero() {
		t := st.UnavailableSince
		resp.UnavailableSince = &t
	}
	return resp
}

// NewDiagnosticsResponse converts a coordinator diagnostics view.
func NewDiagnosticsResponse(d pollen.Diagnostics) DiagnosticsResponse {
	resp := DiagnosticsResponse{
		Location:            NewLocationResponse(d.Location, d.Provider),
		Raw:                 string(d.Raw),
		LastError:           d.LastError,
		ConsecutiveFailures: d.ConsecutiveFailures,
		Degraded:            d.Degraded,
	}
	if !d.LastSuccess.IsZero() {
		t := d.LastSuccess
		resp.LastSuccess = &t
	}
	if !d.LastAttempt.IsZero() {
		t := d.LastAttempt
		resp.LastAttempt = &t
	}
	return resp
}
