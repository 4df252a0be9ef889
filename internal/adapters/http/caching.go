package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		if ttl := cacheControlFor(c.Path(), c.Response().StatusCode()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string, status int) string {
	if status >= 400 {
		return "no-store"
	}

	switch {
	case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
		return "no-cache"

	// The current scene changes with every cycle; clients revalidate with the ETag.
	case path == "/v1/scenes/current":
		return "no-cache"

	case path == "/v1/scenes":
		return "private, max-age=5"

	// Persisted scenes never change.
	case strings.HasPrefix(path, "/v1/scenes/"):
		return "public, max-age=86400, immutable"

	case path == "/v1/resolve":
		return "public, max-age=300"

	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=3600"
	}
	return ""
}
