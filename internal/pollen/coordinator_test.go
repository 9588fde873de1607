package pollen_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// stubClient is a controllable Client for coordinator tests.
type stubClient struct {
	mu    sync.Mutex
	calls int
	fetch func(context.Context, pollen.Location) (*pollen.Forecasts, error)
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Fetch(ctx context.Context, loc pollen.Location) (*pollen.Forecasts, error) {
	s.mu.Lock()
	s.calls++
	fetch := s.fetch
	s.mu.Unlock()
	return fetch(ctx, loc)
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubClient) setFetch(fn func(context.Context, pollen.Location) (*pollen.Forecasts, error)) {
	s.mu.Lock()
	s.fetch = fn
	s.mu.Unlock()
}

func testLocation() pollen.Location {
	return pollen.Location{
		ID:        "loc-1",
		Region:    pollen.RegionNL,
		Name:      "Utrecht",
		Latitude:  52.09,
		Longitude: 5.12,
	}
}

// makeForecasts builds a valid fetch result for the current moment.
func makeForecasts(t *testing.T) *pollen.Forecasts {
	t.Helper()
	now := time.Now()
	fc := &pollen.Forecasts{Raw: []byte(`{"stub":true}`)}
	for _, typ := range pollen.AllTypes() {
		count := 42.0
		set, err := pollen.NormalizeSet(typ, []pollen.Reading{{
			Date:  now,
			Count: &count,
			Unit:  "ppm",
			Level: pollen.LevelModerate,
		}}, now)
		require.NoError(t, err)
		switch typ {
		case pollen.PollenTree:
			fc.Tree = set
		case pollen.PollenGrass:
			fc.Grass = set
		case pollen.PollenWeed:
			fc.Weed = set
		}
	}
	return fc
}

func newTestCoordinator(t *testing.T, client pollen.Client) *pollen.Coordinator {
	t.Helper()
	c := pollen.NewCoordinator(pollen.CoordinatorConfig{
		Location: testLocation(),
		Client:   client,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(c.Stop)
	return c
}

func TestCoordinator_RefreshStoresSnapshot(t *testing.T) {
	client := &stubClient{}
	fc := makeForecasts(t)
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return fc, nil
	})

	c := newTestCoordinator(t, client)

	_, ok := c.Snapshot()
	assert.False(t, ok, "no snapshot before first refresh")

	require.NoError(t, c.Refresh(context.Background()))

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, fc.Tree, snap.Tree)
	assert.WithinDuration(t, time.Now(), snap.UpdatedAt, 5*time.Second)

	st := c.State()
	assert.False(t, st.Stale)
	assert.False(t, st.Degraded)
	assert.True(t, st.UnavailableSince.IsZero())

	updated, ok := c.LastUpdated()
	require.True(t, ok)
	assert.Equal(t, snap.UpdatedAt, updated)
}

func TestCoordinator_FailureKeepsLastSnapshot(t *testing.T) {
	client := &stubClient{}
	fc := makeForecasts(t)
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return fc, nil
	})

	c := newTestCoordinator(t, client)
	require.NoError(t, c.Refresh(context.Background()))

	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return nil, pollen.ErrRateLimited
	})
	require.Error(t, c.Refresh(context.Background()))

	snap, ok := c.Snapshot()
	require.True(t, ok, "snapshot survives a failed refresh")
	assert.Equal(t, fc.Tree, snap.Tree)

	st := c.State()
	assert.True(t, st.Stale)
	assert.False(t, st.Degraded)
	assert.Equal(t, snap.UpdatedAt, st.UnavailableSince)

	diag := c.Diagnostics()
	assert.Equal(t, 1, diag.ConsecutiveFailures)
	assert.Contains(t, diag.LastError, "rate limited")
	assert.Equal(t, "stub", diag.Provider)
}

func TestCoordinator_DegradedAfterThreshold(t *testing.T) {
	client := &stubClient{}
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return nil, pollen.ErrRateLimited
	})

	c := newTestCoordinator(t, client)

	for i := 0; i < pollen.DefaultFailureThreshold; i++ {
		require.Error(t, c.Refresh(context.Background()))
	}

	st := c.State()
	assert.True(t, st.Stale)
	assert.True(t, st.Degraded)
	assert.Nil(t, st.Snapshot)
	assert.Equal(t, pollen.DefaultFailureThreshold, c.Diagnostics().ConsecutiveFailures)
}

func TestCoordinator_SuccessResetsFailures(t *testing.T) {
	client := &stubClient{}
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return nil, pollen.ErrRateLimited
	})

	c := newTestCoordinator(t, client)
	require.Error(t, c.Refresh(context.Background()))
	require.Error(t, c.Refresh(context.Background()))

	fc := makeForecasts(t)
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return fc, nil
	})
	require.NoError(t, c.Refresh(context.Background()))

	diag := c.Diagnostics()
	assert.Equal(t, 0, diag.ConsecutiveFailures)
	assert.Empty(t, diag.LastError)
	assert.False(t, c.State().Stale)
}

func TestCoordinator_ConcurrentRefreshesCoalesce(t *testing.T) {
	client := &stubClient{}
	started := make(chan struct{})
	release := make(chan struct{})
	fc := makeForecasts(t)
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		close(started)
		<-release
		return fc, nil
	})

	c := newTestCoordinator(t, client)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Refresh(context.Background()))
	}()

	<-started

	// These join the in-flight fetch instead of issuing their own.
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Refresh(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, client.callCount(), "exactly one upstream call")
}

func TestCoordinator_WaiterContextCancellation(t *testing.T) {
	client := &stubClient{}
	started := make(chan struct{})
	release := make(chan struct{})
	fc := makeForecasts(t)
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		close(started)
		<-release
		return fc, nil
	})

	c := newTestCoordinator(t, client)

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()
	<-started

	// A cancelled waiter gives up, but the shared fetch still completes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-done)

	_, ok := c.Snapshot()
	assert.True(t, ok)
}

func TestCoordinator_RequestRefreshIsAsync(t *testing.T) {
	client := &stubClient{}
	fetched := make(chan struct{})
	fc := makeForecasts(t)
	var once sync.Once
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		once.Do(func() { close(fetched) })
		return fc, nil
	})

	c := newTestCoordinator(t, client)
	c.RequestRefresh()

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was never performed")
	}
}

func TestCoordinator_StartSchedulesImmediateRefresh(t *testing.T) {
	client := &stubClient{}
	fetched := make(chan struct{})
	fc := makeForecasts(t)
	var once sync.Once
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		once.Do(func() { close(fetched) })
		return fc, nil
	})

	c := pollen.NewCoordinator(pollen.CoordinatorConfig{
		Location: testLocation(),
		Client:   client,
		Logger:   zerolog.Nop(),
		Interval: time.Minute,
	})
	require.NoError(t, c.Start())
	defer c.Stop()

	select {
	case <-fetched:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh never ran")
	}
}

func TestCoordinator_UnsupportedLocationError(t *testing.T) {
	client := &stubClient{}
	client.setFetch(func(context.Context, pollen.Location) (*pollen.Forecasts, error) {
		return nil, pollen.ErrUnsupportedLocation
	})

	c := newTestCoordinator(t, client)
	err := c.Refresh(context.Background())
	assert.True(t, errors.Is(err, pollen.ErrUnsupportedLocation))
}
