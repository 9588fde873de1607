// Package kleenex implements the current-family pollen radar client used for
// the Netherlands, United Kingdom/Ireland, France and Italy. Each region has
// its own site endpoint but all share one request and response schema.
package kleenex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/provider/resilience"
)

// ProviderName identifies this endpoint family.
const ProviderName = "kleenex"

// DefaultEndpoints maps each current-family region to its site endpoint.
func DefaultEndpoints() map[pollen.Region]string {
	return map[pollen.Region]string{
		pollen.RegionNL: "https://www.kleenex.nl/api/sitecore/Pollen/GetPollenContent",
		pollen.RegionUK: "https://www.kleenex.co.uk/api/sitecore/Pollen/GetPollenContent",
		pollen.RegionFR: "https://www.kleenex.fr/api/sitecore/Pollen/GetPollenContent",
		pollen.RegionIT: "https://www.it.scottex.com/api/sitecore/Pollen/GetPollenContent",
	}
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the current-family client.
type ClientConfig struct {
	// Endpoints maps regions to site endpoints (default: DefaultEndpoints).
	Endpoints map[pollen.Region]string

	// HTTPClient executes requests (optional). If nil, a default
	// resilient client is created.
	HTTPClient HTTPDoer

	// Thresholds derives severity levels when upstream omits them
	// (default: pollen.DefaultThresholds).
	Thresholds pollen.Thresholds

	// Logger for client operations.
	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Client is the current-family pollen radar client. It is stateless between
// calls and performs no retries.
type Client struct {
	endpoints  map[pollen.Region]string
	httpClient HTTPDoer
	thresholds pollen.Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new current-family client.
func NewClient(cfg ClientConfig) *Client {
	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = DefaultEndpoints()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}
	thresholds := cfg.Thresholds
	if thresholds == nil {
		thresholds = pollen.DefaultThresholds()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		endpoints:  endpoints,
		httpClient: httpClient,
		thresholds: thresholds,
		logger:     cfg.Logger,
		now:        now,
	}
}

// Name returns the endpoint family name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves and normalizes the forecast window for a location.
func (c *Client) Fetch(ctx context.Context, loc pollen.Location) (*pollen.Forecasts, error) {
	if loc.Region.Legacy() {
		return nil, fmt.Errorf("%w: region %s is served by the legacy endpoint family", pollen.ErrUnsupportedLocation, loc.Region)
	}
	endpoint, ok := c.endpoints[loc.Region]
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint for region %s", pollen.ErrUnsupportedLocation, loc.Region)
	}

	form := url.Values{}
	form.Set("lat", fmt.Sprintf("%g", loc.Latitude))
	form.Set("lng", fmt.Sprintf("%g", loc.Longitude))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", "pollenwatch")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", pollen.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("%w: %v", pollen.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", pollen.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", pollen.ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", pollen.ErrNetwork, err)
	}

	return c.decode(body, loc)
}

// Response schema of the current-family endpoints.

type forecastResponse struct {
	Forecast []dayForecast `json:"forecast"`
}

type dayForecast struct {
	Date  string       `json:"date"`
	Trees typeForecast `json:"trees"`
	Grass typeForecast `json:"grass"`
	Weeds typeForecast `json:"weeds"`
}

type typeForecast struct {
	Count  *float64      `json:"count"`
	Level  string        `json:"level"`
	Unit   string        `json:"unit"`
	Detail []detailEntry `json:"detail"`
}

type detailEntry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Level string  `json:"level"`
}

func (c *Client) decode(body []byte, loc pollen.Location) (*pollen.Forecasts, error) {
	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", pollen.ErrUpstreamFormat, err)
	}
	if len(payload.Forecast) == 0 {
		return nil, fmt.Errorf("%w: empty forecast", pollen.ErrUpstreamFormat)
	}

	byType := map[pollen.Type][]pollen.Reading{}
	for _, day := range payload.Forecast {
		date, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: bad forecast date %q", pollen.ErrUpstreamFormat, day.Date)
		}
		byType[pollen.PollenTree] = append(byType[pollen.PollenTree], c.toReading(pollen.PollenTree, date, day.Trees))
		byType[pollen.PollenGrass] = append(byType[pollen.PollenGrass], c.toReading(pollen.PollenGrass, date, day.Grass))
		byType[pollen.PollenWeed] = append(byType[pollen.PollenWeed], c.toReading(pollen.PollenWeed, date, day.Weeds))
	}

	now := c.now()
	fc := &pollen.Forecasts{Raw: body}
	for _, typ := range pollen.AllTypes() {
		set, err := pollen.NormalizeSet(typ, byType[typ], now)
		if err != nil {
			return nil, err
		}
		switch typ {
		case pollen.PollenTree:
			fc.Tree = set
		case pollen.PollenGrass:
			fc.Grass = set
		case pollen.PollenWeed:
			fc.Weed = set
		}
	}
	if err := fc.Validate(now); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("region", string(loc.Region)).
		Str("position", loc.Position()).
		Int("days", len(payload.Forecast)).
		Msg("decoded current-family forecast")
	return fc, nil
}

// toReading converts one per-type day entry. An upstream-supplied level
// wins; otherwise the level is derived from the threshold table so both
// endpoint families share one severity semantics.
func (c *Client) toReading(typ pollen.Type, date time.Time, tf typeForecast) pollen.Reading {
	unit := strings.ToLower(tf.Unit)
	if unit == "" {
		unit = "ppm"
	}

	level, ok := pollen.ParseLevel(strings.ToLower(tf.Level))
	if !ok {
		var count float64
		if tf.Count != nil {
			count = *tf.Count
		}
		level = c.thresholds.Level(typ, count)
	}

	var species []pollen.SpeciesDetail
	for _, d := range tf.Detail {
		detailLevel, ok := pollen.ParseLevel(strings.ToLower(d.Level))
		if !ok {
			detailLevel = c.thresholds.Level(typ, d.Value)
		}
		species = append(species, pollen.SpeciesDetail{
			Name:  d.Name,
			Count: d.Value,
			Level: detailLevel,
		})
	}

	return pollen.Reading{
		Type:    typ,
		Date:    date,
		Count:   tf.Count,
		Unit:    unit,
		Level:   level,
		Species: species,
	}
}
