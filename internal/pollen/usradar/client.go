// Package usradar implements the legacy pollen radar client for the United
// States. The legacy endpoint predates the current family: it takes a ZIP
// code or coordinates as query parameters, returns a different JSON schema,
// carries no severity levels, and is documented to diverge from what the
// official site displays. It is a fully independent decoding path; the two
// schemas are expected to keep drifting apart.
package usradar

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

const (
	// ProviderName identifies this endpoint family.
	ProviderName = "usradar"

	// DefaultBaseURL is the legacy US forecast endpoint.
	DefaultBaseURL = "https://www.kleenex.com/api/pollen/forecast"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the legacy client.
type ClientConfig struct {
	// BaseURL is the forecast endpoint (default: DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests (optional).
	HTTPClient HTTPDoer

	// Thresholds derives severity levels; the legacy schema never carries
	// them (default: pollen.DefaultThresholds).
	Thresholds pollen.Thresholds

	// Logger for client operations.
	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Client is the legacy US pollen radar client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	thresholds pollen.Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new legacy client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		baseURL:    strings.TrimSuffix(baseURL, "/"),
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

// Fetch retrieves and normalizes the forecast window for a US location.
func (c *Client) Fetch(ctx context.Context, loc pollen.Location) (*pollen.Forecasts, error) {
	if !loc.Region.Legacy() {
		return nil, fmt.Errorf("%w: region %s is served by the current endpoint family", pollen.ErrUnsupportedLocation, loc.Region)
	}

	q := url.Values{}
	if loc.Postal != "" {
		q.Set("zip", loc.Postal)
	} else {
		q.Set("lat", fmt.Sprintf("%g", loc.Latitude))
		q.Set("lon", fmt.Sprintf("%g", loc.Longitude))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
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

	return c.decode(body)
}

// Response schema of the legacy endpoint. Periods carry per-plant "trigger"
// entries with a decimal index and a plant group; levels are absent.

type legacyResponse struct {
	Location legacyLocation `json:"location"`
}

type legacyLocation struct {
	ZIP     string         `json:"zip"`
	Periods []legacyPeriod `json:"periods"`
}

type legacyPeriod struct {
	Period   string          `json:"period"`
	Triggers []legacyTrigger `json:"triggers"`
}

type legacyTrigger struct {
	PlantType string  `json:"plantType"`
	Name      string  `json:"name"`
	Index     float64 `json:"index"`
}

func (c *Client) decode(body []byte) (*pollen.Forecasts, error) {
	var payload legacyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", pollen.ErrUpstreamFormat, err)
	}
	if len(payload.Location.Periods) == 0 {
		return nil, fmt.Errorf("%w: no forecast periods", pollen.ErrUpstreamFormat)
	}

	byType := map[pollen.Type][]pollen.Reading{}
	for _, period := range payload.Location.Periods {
		date, err := time.Parse("2006-01-02", period.Period)
		if err != nil {
			return nil, fmt.Errorf("%w: bad period %q", pollen.ErrUpstreamFormat, period.Period)
		}
		for _, typ := range pollen.AllTypes() {
			byType[typ] = append(byType[typ], c.toReading(typ, date, period.Triggers))
		}
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
		Str("zip", payload.Location.ZIP).
		Int("periods", len(payload.Location.Periods)).
		Msg("decoded legacy forecast")
	return fc, nil
}

// toReading aggregates one period's triggers into a reading for a pollen
// type: the per-type count is the sum of its trigger indices, and the level
// is always derived from the threshold table since the legacy schema has no
// level field.
func (c *Client) toReading(typ pollen.Type, date time.Time, triggers []legacyTrigger) pollen.Reading {
	var (
		count    float64
		measured bool
		species  []pollen.SpeciesDetail
	)
	for _, trig := range triggers {
		if plantGroup(trig.PlantType) != typ {
			continue
		}
		measured = true
		count += trig.Index
		species = append(species, pollen.SpeciesDetail{
			Name:  trig.Name,
			Count: trig.Index,
			Level: c.thresholds.Level(typ, trig.Index),
		})
	}

	r := pollen.Reading{
		Type:    typ,
		Date:    date,
		Unit:    "ppm",
		Level:   pollen.LevelNone,
		Species: species,
	}
	if measured {
		r.Count = &count
		r.Level = c.thresholds.Level(typ, count)
	}
	return r
}

// plantGroup maps the legacy plant type strings onto pollen types.
func plantGroup(plantType string) pollen.Type {
	switch strings.ToLower(plantType) {
	case "tree":
		return pollen.PollenTree
	case "grass":
		return pollen.PollenGrass
	case "weed", "ragweed":
		return pollen.PollenWeed
	default:
		return ""
	}
}
