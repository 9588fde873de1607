// Package handler provides HTTP handlers for the pollenwatch API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pollenwatch/pollenwatch/internal/httpapi/models"
	"github.com/pollenwatch/pollenwatch/internal/httpapi/response"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// LocationsHandler handles location and snapshot endpoints.
type LocationsHandler struct {
	registry *pollen.Registry
	validate *validator.Validate
}

// NewLocationsHandler creates a new LocationsHandler.
func NewLocationsHandler(registry *pollen.Registry) *LocationsHandler {
	return &LocationsHandler{
		registry: registry,
		validate: validator.New(),
	}
}

// CreateLocation handles POST /v1/locations - configure a location.
func (h *LocationsHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var input models.CreateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.validate.Struct(input); err != nil {
		response.BadRequest(w, r, "invalid location", fieldErrors(err))
		return
	}

	region, err := pollen.ParseRegion(input.Region)
	if err != nil {
		response.UnsupportedLocation(w, r, fmt.Sprintf("region %q is not supported", input.Region))
		return
	}

	coord, err := h.registry.Add(pollen.Location{
		Region:    region,
		Name:      input.Name,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Postal:    input.Postal,
	})
	if err != nil {
		if errors.Is(err, pollen.ErrUnsupportedLocation) {
			response.UnsupportedLocation(w, r, err.Error())
			return
		}
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	loc := coord.Location()
	location := fmt.Sprintf("/v1/locations/%s", loc.ID)
	response.Created(w, location, models.NewLocationResponse(loc, coord.Provider()))
}

// ListLocations handles GET /v1/locations - list configured locations.
func (h *LocationsHandler) ListLocations(w http.ResponseWriter, _ *http.Request) {
	coords := h.registry.List()
	out := models.LocationListResponse{
		Locations: make([]models.LocationResponse, 0, len(coords)),
		Count:     len(coords),
	}
	for _, c := range coords {
		out.Locations = append(out.Locations, models.NewLocationResponse(c.Location(), c.Provider()))
	}
	response.OK(w, out)
}

// GetLocation handles GET /v1/locations/{locationId}.
func (h *LocationsHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.OK(w, models.NewLocationResponse(coord.Location(), coord.Provider()))
}

// DeleteLocation handles DELETE /v1/locations/{locationId} - remove a location
// and stop its refresh schedule.
func (h *LocationsHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationId")
	if err := h.registry.Remove(id); err != nil {
		response.NotFound(w, r, err.Error())
		return
	}
	response.NoContent(w)
}

// GetSnapshot handles GET /v1/locations/{locationId}/snapshot - the last good
// five-day forecast. A stale snapshot is still served, marked as such; 404 is
// reserved for locations that never had a successful refresh.
func (h *LocationsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}

	st := coord.State()
	if st.Snapshot == nil {
		response.NotFound(w, r, "no forecast data available yet for this location")
		return
	}
	response.OK(w, models.NewSnapshotResponse(coord.Location().ID, st))
}

// RequestRefresh handles POST /v1/locations/{locationId}/refresh - trigger an
// out-of-schedule refresh. Returns 202: the refresh happens asynchronously and
// coalesces with any fetch already in flight.
func (h *LocationsHandler) RequestRefresh(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}

	coord.RequestRefresh()
	response.Accepted(w, map[string]string{"status": "refresh requested"})
}

// GetDiagnostics handles GET /v1/locations/{locationId}/diagnostics - the raw
// upstream payload and failure counters for troubleshooting.
func (h *LocationsHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.OK(w, models.NewDiagnosticsResponse(coord.Diagnostics()))
}

func (h *LocationsHandler) lookup(w http.ResponseWriter, r *http.Request) (*pollen.Coordinator, bool) {
	id := chi.URLParam(r, "locationId")
	coord, ok := h.registry.Get(id)
	if !ok {
		response.NotFound(w, r, fmt.Sprintf("location %s is not configured", id))
		return nil, false
	}
	return coord, true
}

// fieldErrors converts validator errors into wire-level field errors.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed on the %q rule", fe.Tag()),
		})
	}
	return out
}
