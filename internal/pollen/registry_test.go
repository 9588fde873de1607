package pollen_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

func newTestRegistry(t *testing.T) (*pollen.Registry, *stubClient) {
	t.Helper()
	client := &stubClient{}
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return nil, pollen.ErrRateLimited
	})

	r := pollen.NewRegistry(pollen.RegistryConfig{
		Factory:  func(pollen.Location) (pollen.Client, error) { return client, nil },
		Logger:   zerolog.Nop(),
		Interval: time.Hour,
	})
	t.Cleanup(r.Close)
	return r, client
}

func TestRegistry_AddAssignsID(t *testing.T) {
	r, _ := newTestRegistry(t)

	coord, err := r.Add(pollen.Location{
		Region:    pollen.RegionNL,
		Name:      "Utrecht",
		Latitude:  52.09,
		Longitude: 5.12,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, coord.Location().ID)

	got, ok := r.Get(coord.Location().ID)
	require.True(t, ok)
	assert.Equal(t, coord, got)
}

func TestRegistry_AddRejectsInvalidLocation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Add(pollen.Location{
		Region:    "de",
		Name:      "Berlin",
		Latitude:  52.52,
		Longitude: 13.40,
	})
	assert.ErrorIs(t, err, pollen.ErrUnsupportedLocation)

	_, err = r.Add(pollen.Location{
		Region: pollen.RegionNL,
		Name:   "",
	})
	assert.Error(t, err)
}

func TestRegistry_ListOrderedByName(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, name := range []string{"Zwolle", "Amsterdam", "Maastricht"} {
		_, err := r.Add(pollen.Location{
			Region:    pollen.RegionNL,
			Name:      name,
			Latitude:  52.0,
			Longitude: 5.0,
		})
		require.NoError(t, err)
	}

	coords := r.List()
	require.Len(t, coords, 3)
	assert.Equal(t, "Amsterdam", coords[0].Location().Name)
	assert.Equal(t, "Maastricht", coords[1].Location().Name)
	assert.Equal(t, "Zwolle", coords[2].Location().Name)
}

func TestRegistry_Remove(t *testing.T) {
	r, _ := newTestRegistry(t)

	coord, err := r.Add(pollen.Location{
		Region:    pollen.RegionUS,
		Name:      "Chicago",
		Latitude:  41.88,
		Longitude: -87.63,
	})
	require.NoError(t, err)

	id := coord.Location().ID
	require.NoError(t, r.Remove(id))

	_, ok := r.Get(id)
	assert.False(t, ok)
	assert.Error(t, r.Remove(id), "removing twice fails")
}

func TestRegistry_CloseRejectsFurtherAdds(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Close()

	_, err := r.Add(pollen.Location{
		Region:    pollen.RegionNL,
		Name:      "Utrecht",
		Latitude:  52.09,
		Longitude: 5.12,
	})
	assert.Error(t, err)
}
