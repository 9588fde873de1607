package pollen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/telemetry"
)

const (
	// DefaultInterval is the scheduled refresh cadence. The upstream only
	// updates every few hours, so polling hourly is plenty without
	// hammering an unofficial API.
	DefaultInterval = time.Hour

	// MinInterval is the floor for configured refresh intervals.
	MinInterval = time.Minute

	// DefaultTimeout bounds a single upstream request. Kept well under the
	// refresh interval so a slow upstream never stalls the cycle.
	DefaultTimeout = 10 * time.Second

	// DefaultFailureThreshold is the number of consecutive failures after
	// which the coordinator reports a degraded state.
	DefaultFailureThreshold = 3
)

// CoordinatorConfig holds configuration for a Coordinator.
type CoordinatorConfig struct {
	// Location to keep fresh (required, already validated).
	Location Location

	// Client for the location's endpoint family (required).
	Client Client

	// Logger for refresh operations.
	Logger zerolog.Logger

	// Interval between scheduled refreshes (default: DefaultInterval).
	Interval time.Duration

	// Timeout for a single upstream fetch (default: DefaultTimeout).
	Timeout time.Duration

	// FailureThreshold is the consecutive-failure count at which the
	// coordinator escalates to a degraded state (default: 3).
	FailureThreshold int

	// Metrics records fetch outcomes (optional).
	Metrics *telemetry.FetchMetrics
}

// Coordinator owns the refresh lifecycle for a single configured location:
// it schedules fetches, coalesces concurrent refresh requests onto one
// outstanding upstream call, caches the last good snapshot, and tracks
// failure state. Once a good snapshot exists it is never discarded by a
// later failure; consumers get stale data with an explicit marker instead.
type Coordinator struct {
	loc              Location
	client           Client
	logger           zerolog.Logger
	interval         time.Duration
	timeout          time.Duration
	failureThreshold int
	metrics          *telemetry.FetchMetrics

	scheduler *gocron.Scheduler
	retry     backoff.BackOff

	mu          sync.Mutex
	snapshot    *Snapshot
	lastErr     error
	lastAttempt time.Time
	failures    int
	flight      *flight
	retryTimer  *time.Timer
	stopped     bool
}

// flight tracks one outstanding refresh so late requesters can await it.
type flight struct {
	done chan struct{}
	err  error
}

// NewCoordinator creates a coordinator for a validated location.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Minute
	bo.MaxInterval = interval
	bo.MaxElapsedTime = 0

	return &Coordinator{
		loc:              cfg.Location,
		client:           cfg.Client,
		logger:           cfg.Logger.With().Str("location", cfg.Location.Name).Str("region", string(cfg.Location.Region)).Logger(),
		interval:         interval,
		timeout:          timeout,
		failureThreshold: threshold,
		metrics:          cfg.Metrics,
		retry:            bo,
	}
}

// Start begins the periodic refresh schedule, performing the first refresh
// immediately. The schedule runs until Stop is called.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.scheduler != nil {
		c.mu.Unlock()
		return nil
	}
	s := gocron.NewScheduler(time.UTC)
	c.scheduler = s
	c.mu.Unlock()

	_, err := s.Every(c.interval).StartImmediately().Do(func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Debug().Err(err).Msg("scheduled refresh failed")
		}
	})
	if err != nil {
		return err
	}
	s.StartAsync()
	return nil
}

// Stop halts the schedule and any pending early retry. An in-flight fetch is
// allowed to finish; its result is still recorded.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	s := c.scheduler
	c.scheduler = nil
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Location returns the configured location.
func (c *Coordinator) Location() Location {
	return c.loc
}

// Provider returns the endpoint family name serving this location.
func (c *Coordinator) Provider() string {
	return c.client.Name()
}

// RequestRefresh triggers a refresh without blocking the caller. If a
// refresh is already in flight the request coalesces onto it; there is never
// more than one outstanding upstream call per location.
func (c *Coordinator) RequestRefresh() {
	go func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Debug().Err(err).Msg("requested refresh failed")
		}
	}()
}

// Refresh performs a refresh, or awaits the one already in flight. The
// caller's context only bounds the wait: the upstream fetch itself runs under
// the coordinator's own timeout so that cancelling one waiter cannot abort
// work other waiters share.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if f := c.flight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.flight = f
	c.mu.Unlock()

	f.err = c.doRefresh()

	c.mu.Lock()
	c.flight = nil
	c.mu.Unlock()
	close(f.done)

	return f.err
}

func (c *Coordinator) doRefresh() error {
	fctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	fc, err := c.client.Fetch(fctx, c.loc)
	if c.metrics != nil {
		c.metrics.RecordFetch(c.client.Name(), string(c.loc.Region), time.Since(start), err)
	}

	if err != nil {
		c.recordFailure(err)
		return err
	}

	snap := &Snapshot{
		Tree:      fc.Tree,
		Grass:     fc.Grass,
		Weed:      fc.Weed,
		UpdatedAt: time.Now(),
		Raw:       fc.Raw,
	}

	c.mu.Lock()
	c.snapshot = snap
	c.lastErr = nil
	c.lastAttempt = snap.UpdatedAt
	c.failures = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()
	c.retry.Reset()

	c.logger.Debug().
		Time("updated_at", snap.UpdatedAt).
		Dur("duration", time.Since(start)).
		Msg("snapshot refreshed")
	return nil
}

func (c *Coordinator) recordFailure(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.lastAttempt = time.Now()
	c.failures++
	failures := c.failures
	stopped := c.stopped
	c.mu.Unlock()

	evt := c.logger.Warn()
	if failures >= c.failureThreshold {
		evt = c.logger.Error().Bool("degraded", true)
	}
	evt.Err(err).Int("consecutive_failures", failures).Msg("refresh failed, serving last good snapshot")

	// A rate-limited or misconfigured location gets no early retry; the
	// regular schedule will try again on its own.
	if stopped || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnsupportedLocation) {
		return
	}
	next := c.retry.NextBackOff()
	if next == backoff.Stop || next >= c.interval {
		return
	}
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(next, c.RequestRefresh)
	c.mu.Unlock()
}

// State is the consumer-facing view of the coordinator: the last good
// snapshot (possibly nil), whether it is stale, and since when the upstream
// has been unavailable.
type State struct {
	// Snapshot is the last good snapshot, nil if none exists yet.
	Snapshot *Snapshot

	// Stale is set when the most recent refresh attempt failed.
	Stale bool

	// Degraded is set after the consecutive-failure threshold is crossed.
	Degraded bool

	// UnavailableSince is the timestamp of the last successful refresh
	// when Stale is set, i.e. "data unavailable since". Zero when fresh.
	UnavailableSince time.Time
}

// State returns the current consumer view. Reads never block on network I/O.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Snapshot: c.snapshot,
		Stale:    c.lastErr != nil,
		Degraded: c.failures >= c.failureThreshold,
	}
	if st.Stale && c.snapshot != nil {
		st.UnavailableSince = c.snapshot.UpdatedAt
	}
	return st
}

// Snapshot returns the last good snapshot. The bool is false when no refresh
// has ever succeeded.
func (c *Coordinator) Snapshot() (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.snapshot != nil
}

// LastUpdated returns the time of the last successful refresh. The bool is
// false when no refresh has ever succeeded.
func (c *Coordinator) LastUpdated() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return time.Time{}, false
	}
	return c.snapshot.UpdatedAt, true
}

// Diagnostics is the troubleshooting view: the raw upstream payload, the
// last failure, and failure counters. Meant for diagnosing "upstream changed
// its format" vs. "network blip".
type Diagnostics struct {
	Location            Location
	Provider            string
	Raw                 []byte
	LastError           string
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastAttempt         time.Time
	Degraded            bool
}

// Diagnostics returns the current diagnostics view.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diagnostics{
		Location:            c.loc,
		Provider:            c.client.Name(),
		ConsecutiveFailures: c.failures,
		LastAttempt:         c.lastAttempt,
		Degraded:            c.failures >= c.failureThreshold,
	}
	if c.lastErr != nil {
		d.LastError = c.lastErr.Error()
	}
	if c.snapshot != nil {
		d.Raw = c.snapshot.Raw
		d.LastSuccess = c.snapshot.UpdatedAt
	}
	return d
}
