package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

const maxNameLength = 200

// RunSceneHandler runs a resolution cycle for the posted plan and returns the
// resulting scene. A cycle overtaken by a newer request answers 409 with the
// discarded scene left out.
func RunSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plan domain.Plan
		if err := c.BodyParser(&plan); err != nil {
			return errBadRequest(c, "invalid plan body: "+err.Error())
		}
		if err := validatePlan(&plan); err != nil {
			return errBadRequest(c, err.Error())
		}

		scene, err := deps.Scenes.Run(c.UserContext(), plan)
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Set("X-Run-ID", strconv.FormatUint(scene.RunID, 10))
		return c.JSON(scene)
	}
}

func validatePlan(plan *domain.Plan) error {
	if len(plan.Incident.Name) > maxNameLength {
		return errors.New("incident name too long (max 200 characters)")
	}
	if (plan.Incident.Lat == nil) != (plan.Incident.Lon == nil) {
		return errors.New("incident lat and lon must be given together")
	}
	for i, a := range plan.Assignments {
		if a.HospitalID == "" && strings.TrimSpace(a.HospitalName) == "" {
			return errors.New("assignment " + strconv.Itoa(i) + " needs hospital_id or hospital_name")
		}
		if (a.Lat == nil) != (a.Lon == nil) {
			return errors.New("assignment " + strconv.Itoa(i) + ": lat and lon must be given together")
		}
	}
	return nil
}

// CurrentSceneHandler returns the most recently published scene.
func CurrentSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scene := deps.Scenes.Current()
		if scene == nil {
			return errNotFound(c, "no scene has been published yet")
		}

		runID, state := deps.Scenes.State()
		c.Set("X-Run-ID", strconv.FormatUint(scene.RunID, 10))
		c.Set("X-Cycle-State", string(state))
		c.Set("X-Active-Run-ID", strconv.FormatUint(runID, 10))
		return c.JSON(scene)
	}
}

// ListScenesHandler returns persisted scene summaries, newest first.
func ListScenesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.History == nil {
			return errUnavailable(c, "scene history not configured")
		}

		offset, limit := ParsePagination(c, 20, 100)
		summaries, total, err := deps.History.List(c.UserContext(), offset, limit)
		if err != nil {
			return errFromDomain(c, err)
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: summaries, Pagination: pg})
	}
}

// GetSceneHandler returns one scene by id. The current scene is served from
// memory; older ones come from history.
func GetSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if cur := deps.Scenes.Current(); cur != nil && cur.ID == id {
			return c.JSON(cur)
		}
		if deps.History == nil {
			return errNotFound(c, "scene not found")
		}

		scene, err := deps.History.GetByID(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(scene)
	}
}

// ResolveHandler resolves one place name (or coordinate pair) into the
// operational region, exactly as a scene cycle would.
func ResolveHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.Query("name"))
		if len(name) > maxNameLength {
			return errBadRequest(c, "name too long (max 200 characters)")
		}

		lat, err := queryFloat(c, "lat")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		lon, err := queryFloat(c, "lon")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if (lat == nil) != (lon == nil) {
			return errBadRequest(c, "lat and lon must be given together")
		}
		if name == "" && lat == nil {
			return errBadRequest(c, "name or lat/lon is required")
		}

		loc := deps.Locations.Resolve(c.UserContext(), name, lat, lon)
		return c.JSON(fiber.Map{
			"name":     name,
			"location": loc,
			"region":   deps.Locations.Region(),
		})
	}
}

func queryFloat(c *fiber.Ctx, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(key + " must be a number")
	}
	return &v, nil
}
