package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/surgemap/internal/adapters/postgres"
	"github.com/samirrijal/surgemap/internal/adapters/valkey"
	"github.com/samirrijal/surgemap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. History, NATS,
// DB, and Cache are optional; the endpoints that need them degrade to 503.
type Dependencies struct {
	Scenes    *usecases.SceneService
	History   *usecases.HistoryService
	Locations *usecases.LocationService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
	Version   string
}
