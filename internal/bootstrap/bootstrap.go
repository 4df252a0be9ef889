// Package bootstrap wires the resolution pipeline from configuration. Every
// binary that runs cycles builds it the same way.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/samirrijal/surgemap/internal/adapters/nominatim"
	"github.com/samirrijal/surgemap/internal/adapters/openroute"
	"github.com/samirrijal/surgemap/internal/adapters/postgres"
	"github.com/samirrijal/surgemap/internal/adapters/valkey"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/core/usecases"
	"github.com/samirrijal/surgemap/internal/pkg/config"
)

// Database opens the Postgres pool, tagging connections with the service name.
func Database(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, cfg.Database.DSN(), postgres.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		AppName:  cfg.Telemetry.ServiceName,
	})
}

// Cache connects to Valkey. The cache is optional: on failure both results
// are nil, so callers never hold a typed-nil ports.CacheService.
func Cache(cfg *config.Config) (ports.CacheService, *valkey.Cache) {
	c, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, running without cache", "error", err)
		return nil, nil
	}
	return c, c
}

// Geocoder builds the Nominatim client restricted to the operational region.
func Geocoder(cfg *config.Config) *nominatim.Client {
	box := cfg.Region.Bounds()
	return nominatim.New(nominatim.Options{
		BaseURL:       cfg.Geocoder.BaseURL,
		UserAgent:     cfg.Geocoder.UserAgent,
		CountryCodes:  cfg.Geocoder.CountryCodes,
		Viewbox:       &box,
		Bounded:       cfg.Geocoder.Bounded,
		Timeout:       cfg.Geocoder.Timeout,
		RatePerSecond: cfg.Geocoder.RatePerSecond,
	})
}

// Router builds the OpenRouteService client.
func Router(cfg *config.Config) *openroute.Client {
	if cfg.Router.APIKey == "" {
		slog.Warn("router.api_key is empty, route requests will be rejected")
	}
	return openroute.New(openroute.Options{
		BaseURL: cfg.Router.BaseURL,
		APIKey:  cfg.Router.APIKey,
		Profile: cfg.Router.Profile,
		Timeout: cfg.Router.Timeout,
	})
}

// Resolver builds the coordinate resolver. cache may be nil.
func Resolver(cfg *config.Config, geocoder ports.Geocoder, cache ports.CacheService) *usecases.CoordinateResolver {
	return usecases.NewCoordinateResolver(geocoder, cache, cfg.Geocoder.CityHint, cfg.Valkey.GeocodeTTL)
}

// Pipeline assembles the four resolution stages.
func Pipeline(cfg *config.Config, resolver *usecases.CoordinateResolver, router ports.Router) usecases.Pipeline {
	return usecases.Pipeline{
		Resolver:   resolver,
		Validator:  usecases.NewBoundsValidator(cfg.Region.Bounds(), cfg.Region.Center(), cfg.Region.FallbackSpread),
		Routes:     usecases.NewRouteFetcher(router, cfg.Router.Timeout, cfg.Router.MaxConcurrent, cfg.Router.Tolerance),
		Aggregator: usecases.NewSceneAggregator(cfg.Region.Padding, cfg.Region.Center(), cfg.Region.Zoom),
	}
}
