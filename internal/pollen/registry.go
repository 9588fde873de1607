package pollen

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/telemetry"
)

// RegistryConfig holds configuration shared by all coordinators.
type RegistryConfig struct {
	// Factory resolves the client for a location's endpoint family.
	Factory ClientFactory

	// Logger for coordinator operations.
	Logger zerolog.Logger

	// Interval, Timeout and FailureThreshold are passed through to each
	// coordinator; zero values use the coordinator defaults.
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int

	// Metrics records fetch outcomes (optional).
	Metrics *telemetry.FetchMetrics
}

// Registry owns one coordinator per configured location. Locations are
// validated and their coordinator started on Add, and torn down on Remove;
// there is no hidden process-wide state besides this instance.
type Registry struct {
	cfg RegistryConfig

	mu     sync.RWMutex
	coords map[string]*Coordinator
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:    cfg,
		coords: make(map[string]*Coordinator),
	}
}

// Add validates and registers a location, starts its refresh schedule, and
// returns the new coordinator. An unsupported or invalid location is
// rejected here, at configuration time.
func (r *Registry) Add(loc Location) (*Coordinator, error) {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	client, err := r.cfg.Factory(loc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}
	if _, exists := r.coords[loc.ID]; exists {
		return nil, fmt.Errorf("location %s is already configured", loc.ID)
	}

	c := NewCoordinator(CoordinatorConfig{
		Location:         loc,
		Client:           client,
		Logger:           r.cfg.Logger,
		Interval:         r.cfg.Interval,
		Timeout:          r.cfg.Timeout,
		FailureThreshold: r.cfg.FailureThreshold,
		Metrics:          r.cfg.Metrics,
	})
	if err := c.Start(); err != nil {
		return nil, err
	}
	r.coords[loc.ID] = c

	r.cfg.Logger.Info().
		Str("id", loc.ID).
		Str("name", loc.Name).
		Str("region", string(loc.Region)).
		Msg("location configured")
	return c, nil
}

// Get returns the coordinator for a location ID.
func (r *Registry) Get(id string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coords[id]
	return c, ok
}

// List returns all coordinators, ordered by location name.
func (r *Registry) List() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location().Name < out[j].Location().Name })
	return out
}

// Remove stops and deletes the coordinator for a location ID.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	c, ok := r.coords[id]
	if ok {
		delete(r.coords, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("location %s is not configured", id)
	}
	c.Stop()
	r.cfg.Logger.Info().Str("id", id).Msg("location removed")
	return nil
}

// Close stops every coordinator. The registry accepts no further additions.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	coords := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		coords = append(coords, c)
	}
	r.coords = make(map[string]*Coordinator)
	r.mu.Unlock()

	for _, c := range coords {
		c.Stop()
	}
}
