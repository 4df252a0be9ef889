package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/samirrijal/surgemap/internal/bootstrap"
	"github.com/samirrijal/surgemap/internal/pkg/config"
	"github.com/samirrijal/surgemap/internal/pkg/logging"
)

// Manifest lists the places worth having in the geocode cache before the
// first incident: the hospital network and well-known landmarks.
type Manifest struct {
	Region    string          `json:"region"`
	Hospitals []HospitalEntry `json:"hospitals"`
	Landmarks []string        `json:"landmarks"`
}

type HospitalEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Names returns every place name in the manifest, hospitals first.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Hospitals)+len(m.Landmarks))
	for _, h := range m.Hospitals {
		if h.Name != "" {
			names = append(names, h.Name)
		}
	}
	for _, l := range m.Landmarks {
		if l != "" {
			names = append(names, l)
		}
	}
	return names
}

func main() {
	cfg, err := config.Load("surgemap-geocache")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	manifestPath := "places.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	cache, valkeyCache := bootstrap.Cache(cfg)
	if valkeyCache == nil {
		log.Fatal("geocache needs a reachable valkey")
	}
	defer valkeyCache.Close()

	names := manifest.Names()
	// The public geocoder allows about one request per second, so a large
	// manifest takes a while.
	timeout := time.Duration(len(names)+10) * 2 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	resolver := bootstrap.Resolver(cfg, bootstrap.Geocoder(cfg), cache)
	n := resolver.Warm(ctx, names, 4)

	slog.Info("geocode cache warmed",
		"region", manifest.Region,
		"names", len(names),
		"resolved", n,
		"elapsed", time.Since(start).String(),
	)
	if n < len(names) {
		slog.Warn("some places did not resolve and will use fallbacks", "missing", len(names)-n)
	}
}
