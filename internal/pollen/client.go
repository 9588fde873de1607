package pollen

import "context"

// Client fetches and normalizes pollen forecasts for one endpoint family.
// Implementations are stateless between calls and never retry: retry and
// backoff policy is owned by the Coordinator so that failure state stays in
// one place.
type Client interface {
	// Fetch retrieves the forecast window for a location. The returned
	// Forecasts always contain three valid forecast sets, or an error
	// wrapping one of the pollen error kinds.
	Fetch(ctx context.Context, loc Location) (*Forecasts, error)

	// Name identifies the endpoint family for logging and metrics.
	Name() string
}

// ClientFactory resolves the client serving a location's endpoint family.
// Wiring lives in the entrypoint; the registry only consumes the factory.
type ClientFactory func(Location) (Client, error)
