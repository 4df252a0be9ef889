package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Router    RouterConfig    `mapstructure:"router"`
	Region    RegionConfig    `mapstructure:"region"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
	// GeocodeTTL is how long a geocoded name is cached.
	GeocodeTTL time.Duration `mapstructure:"geocode_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type GeocoderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	CountryCodes  string        `mapstructure:"country_codes"`
	CityHint      string        `mapstructure:"city_hint"`
	Bounded       bool          `mapstructure:"bounded"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

type RouterConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Profile       string        `mapstructure:"profile"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	// Tolerance is the allowed gap, in degrees, between a path's endpoints
	// and the requested points.
	Tolerance float64 `mapstructure:"tolerance"`
}

// RegionConfig describes the operational area. All resolved points are
// kept inside the box.
type RegionConfig struct {
	MinLat         float64 `mapstructure:"min_lat"`
	MaxLat         float64 `mapstructure:"max_lat"`
	MinLon         float64 `mapstructure:"min_lon"`
	MaxLon         float64 `mapstructure:"max_lon"`
	CenterLat      float64 `mapstructure:"center_lat"`
	CenterLon      float64 `mapstructure:"center_lon"`
	Zoom           int     `mapstructure:"zoom"`
	Padding        float64 `mapstructure:"padding"`
	FallbackSpread float64 `mapstructure:"fallback_spread"`
}

// Bounds returns the operational bounding box.
func (r RegionConfig) Bounds() domain.Bounds {
	return domain.Bounds{MinLat: r.MinLat, MinLon: r.MinLon, MaxLat: r.MaxLat, MaxLon: r.MaxLon}
}

// Center returns the default map centre.
func (r RegionConfig) Center() domain.GeoPoint {
	return domain.GeoPoint{Lat: r.CenterLat, Lon: r.CenterLon}
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "surgemap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "surgemap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.geocode_ttl", "24h")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "surge-scenes")
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "surgemap/1.0 (ops@surgemap.local)")
	v.SetDefault("geocoder.country_codes", "in")
	v.SetDefault("geocoder.city_hint", "Mumbai, India")
	v.SetDefault("geocoder.bounded", true)
	v.SetDefault("geocoder.timeout", "5s")
	v.SetDefault("geocoder.rate_per_second", 1.0)
	v.SetDefault("router.base_url", "https://api.openrouteservice.org")
	v.SetDefault("router.api_key", "")
	v.SetDefault("router.profile", "driving-car")
	v.SetDefault("router.timeout", "8s")
	v.SetDefault("router.max_concurrent", 4)
	v.SetDefault("router.tolerance", 0.01)
	v.SetDefault("region.min_lat", 18.85)
	v.SetDefault("region.max_lat", 19.30)
	v.SetDefault("region.min_lon", 72.77)
	v.SetDefault("region.max_lon", 72.99)
	v.SetDefault("region.center_lat", 19.076)
	v.SetDefault("region.center_lon", 72.8777)
	v.SetDefault("region.zoom", 12)
	v.SetDefault("region.padding", 0.01)
	v.SetDefault("region.fallback_spread", 0.01)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SURGEMAP_ROUTER_API_KEY → router.api_key
	v.SetEnvPrefix("SURGEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "database.max_conns must be positive and not below database.min_conns")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Geocoder.BaseURL == "" {
		errs = append(errs, "geocoder.base_url is required")
	}
	if c.Geocoder.UserAgent == "" {
		errs = append(errs, "geocoder.user_agent is required by the provider's usage policy")
	}
	if c.Geocoder.Timeout <= 0 {
		errs = append(errs, "geocoder.timeout must be positive")
	}
	if c.Router.BaseURL == "" {
		errs = append(errs, "router.base_url is required")
	}
	if c.Router.Timeout <= 0 {
		errs = append(errs, "router.timeout must be positive")
	}
	if c.Router.MaxConcurrent <= 0 {
		errs = append(errs, "router.max_concurrent must be positive")
	}
	if c.Router.Tolerance <= 0 {
		errs = append(errs, "router.tolerance must be positive")
	}
	if !c.Region.Bounds().Valid() {
		errs = append(errs, "region bounds must have min < max on both axes")
	}
	if c.Region.MinLat < -90 || c.Region.MaxLat > 90 || c.Region.MinLon < -180 || c.Region.MaxLon > 180 {
		errs = append(errs, "region bounds must be valid WGS 84 coordinates")
	}
	if !c.Region.Bounds().Contains(c.Region.Center()) {
		errs = append(errs, "region center must lie inside the region bounds")
	}
	if c.Region.Zoom < 0 || c.Region.Zoom > 22 {
		errs = append(errs, fmt.Sprintf("region.zoom must be 0-22, got %d", c.Region.Zoom))
	}
	if c.Region.Padding < 0 || c.Region.FallbackSpread < 0 {
		errs = append(errs, "region.padding and region.fallback_spread must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
