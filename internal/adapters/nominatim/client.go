// Package nominatim implements ports.Geocoder against the OpenStreetMap
// Nominatim search API.
package nominatim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/pkg/fetch"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	// Viewbox biases (and with Bounded, restricts) results to the region.
	Viewbox *domain.Bounds
	Bounded bool
	Limit   int
	Timeout time.Duration
	// RatePerSecond caps outgoing requests; the public instance allows 1/s.
	RatePerSecond float64
}

// Client is a Nominatim geocoder.
type Client struct {
	opts    Options
	http    *fetch.Client
	limiter *rate.Limiter
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Limit <= 0 {
		opts.Limit = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		opts:    opts,
		http:    fetch.New(opts.Timeout),
		limiter: rate.NewLimiter(limit, 2),
	}
}

type place struct {
	Lat         coord  `json:"lat"`
	Lon         coord  `json:"lon"`
	DisplayName string `json:"display_name"`
}

// coord accepts both the string and the numeric encodings Nominatim
// deployments use. A value that does not parse leaves ok unset so one bad
// candidate does not spoil the rest of the response.
type coord struct {
	v  float64
	ok bool
}

func (c *coord) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseFloat(string(bytes.Trim(b, `"`)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*c = coord{}
		return nil
	}
	*c = coord{v: v, ok: true}
	return nil
}

// Geocode returns candidates for query, best match first.
func (c *Client) Geocode(ctx context.Context, query string) ([]domain.GeoPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %w", domain.ErrProviderUnavailable, err)
	}

	params := map[string]string{
		"q":      query,
		"format": "jsonv2",
		"limit":  strconv.Itoa(c.opts.Limit),
	}
	if c.opts.CountryCodes != "" {
		params["countrycodes"] = c.opts.CountryCodes
	}
	if vb := c.opts.Viewbox; vb != nil {
		// left,top,right,bottom
		params["viewbox"] = fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", vb.MinLon, vb.MaxLat, vb.MaxLon, vb.MinLat)
		if c.opts.Bounded {
			params["bounded"] = "1"
		}
	}

	resp, err := c.http.Get(ctx, fetch.Request{
		URL:       c.opts.BaseURL + "/search",
		Query:     params,
		UserAgent: c.opts.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if err := fetch.Classify(resp.Status); err != nil {
		return nil, err
	}

	// An absent array is a valid "no result", same as [].
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return nil, nil
	}
	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}

	points := make([]domain.GeoPoint, 0, len(places))
	for _, p := range places {
		if !p.Lat.ok || !p.Lon.ok {
			continue
		}
		lat, lon := p.Lat.v, p.Lon.v
		if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
			continue
		}
		points = append(points, domain.GeoPoint{Lat: lat, Lon: lon})
	}
	if len(places) > 0 && len(points) == 0 {
		return nil, fmt.Errorf("%w: no usable coordinates", domain.ErrMalformedResponse)
	}
	return points, nil
}
