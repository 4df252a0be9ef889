// Package openroute implements ports.Router against the OpenRouteService
// directions API.
package openroute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/pkg/fetch"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Profile string
	Timeout time.Duration
}

// Client is an OpenRouteService router.
type Client struct {
	opts Options
	http *fetch.Client
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Profile == "" {
		opts.Profile = "driving-car"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &Client{opts: opts, http: fetch.New(opts.Timeout)}
}

type directions struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance *float64 `json:"distance"` // metres
				Duration *float64 `json:"duration"` // seconds
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Route returns the driving path from origin to destination.
func (c *Client) Route(ctx context.Context, origin, destination domain.GeoPoint) (*domain.RouteGeometry, error) {
	resp, err := c.http.Get(ctx, fetch.Request{
		URL: c.opts.BaseURL + "/v2/directions/" + c.opts.Profile,
		Query: map[string]string{
			"api_key": c.opts.APIKey,
			"start":   lonLat(origin),
			"end":     lonLat(destination),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := fetch.Classify(resp.Status); err != nil {
		return nil, err
	}

	var body directions
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}
	if len(body.Features) == 0 {
		return nil, domain.ErrNoResultFound
	}

	f := body.Features[0]
	coords := f.Geometry.Coordinates
	if len(coords) < 2 {
		return nil, fmt.Errorf("%w: %d coordinates", domain.ErrMalformedResponse, len(coords))
	}

	// GeoJSON positions are (lon, lat).
	path := make([]domain.GeoPoint, len(coords))
	for i, pos := range coords {
		if len(pos) < 2 {
			return nil, fmt.Errorf("%w: position %d has %d values", domain.ErrMalformedResponse, i, len(pos))
		}
		path[i] = domain.GeoPoint{Lat: pos[1], Lon: pos[0]}
	}

	route := &domain.RouteGeometry{Path: path}
	if d := f.Properties.Summary.Distance; d != nil {
		km := *d / 1000
		route.DistanceKm = &km
	}
	if d := f.Properties.Summary.Duration; d != nil {
		minutes := *d / 60
		route.DurationMin = &minutes
	}
	return route, nil
}

func lonLat(p domain.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
}
