package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services. Field
// resolution falls back to the json tags on the domain types.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	resolvedPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolvedPoint",
		Fields: graphql.Fields{
			"lat":        &graphql.Field{Type: graphql.Float},
			"lon":        &graphql.Field{Type: graphql.Float},
			"provenance": &graphql.Field{Type: graphql.String},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"bounds": &graphql.Field{Type: boundsType},
			"center": &graphql.Field{Type: geoPointType},
			"zoom":   &graphql.Field{Type: graphql.Int},
		},
	})

	assignmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Assignment",
		Fields: graphql.Fields{
			"hospital_id":       &graphql.Field{Type: graphql.String},
			"hospital_name":     &graphql.Field{Type: graphql.String},
			"assigned_critical": &graphql.Field{Type: graphql.Int},
			"assigned_stable":   &graphql.Field{Type: graphql.Int},
		},
	})

	hospitalType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HospitalMarker",
		Fields: graphql.Fields{
			"assignment":  &graphql.Field{Type: assignmentType},
			"point":       &graphql.Field{Type: resolvedPointType},
			"distance_km": &graphql.Field{Type: graphql.Float},
			"travel_min":  &graphql.Field{Type: graphql.Float},
			"has_route":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteGeometry",
		Fields: graphql.Fields{
			"hospital_id":  &graphql.Field{Type: graphql.String},
			"path":         &graphql.Field{Type: graphql.NewList(geoPointType)},
			"distance_km":  &graphql.Field{Type: graphql.Float},
			"duration_min": &graphql.Field{Type: graphql.Float},
		},
	})

	incidentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "IncidentMarker",
		Fields: graphql.Fields{
			"name":  &graphql.Field{Type: graphql.String},
			"point": &graphql.Field{Type: resolvedPointType},
		},
	})

	sceneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scene",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"run_id":       &graphql.Field{Type: graphql.Int, Resolve: runIDField},
			"incident":     &graphql.Field{Type: incidentType},
			"hospitals":    &graphql.Field{Type: graphql.NewList(hospitalType)},
			"routes":       &graphql.Field{Type: graphql.NewList(routeType)},
			"viewport":     &graphql.Field{Type: viewportType},
			"generated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SceneSummary",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"run_id":        &graphql.Field{Type: graphql.Int, Resolve: runIDField},
			"incident_name": &graphql.Field{Type: graphql.String},
			"hospitals":     &graphql.Field{Type: graphql.Int},
			"routes":        &graphql.Field{Type: graphql.Int},
			"generated_at":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	locationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Location",
		Fields: graphql.Fields{
			"point":           &graphql.Field{Type: resolvedPointType},
			"fallback_reason": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"scene": &graphql.Field{
				Type:        sceneType,
				Description: "A scene by ID, or the current scene when no ID is given",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					cur := deps.Scenes.Current()
					id, _ := p.Args["id"].(string)
					if id == "" || (cur != nil && cur.ID == id) {
						if cur == nil {
							return nil, nil
						}
						return cur, nil
					}
					if deps.History == nil {
						return nil, domain.ErrNotFound
					}
					return deps.History.GetByID(p.Context, id)
				},
			},
			"scenes": &graphql.Field{
				Type:        graphql.NewList(summaryType),
				Description: "Persisted scenes, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.History == nil {
						return nil, errors.New("scene history not configured")
					}
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					summaries, _, err := deps.History.List(p.Context, offset, limit)
					return summaries, err
				},
			},
			"resolve": &graphql.Field{
				Type:        locationType,
				Description: "Resolve a place name into the operational region",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lat":  &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":  &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name := p.Args["name"].(string)
					var lat, lon *float64
					if v, ok := p.Args["lat"].(float64); ok {
						lat = &v
					}
					if v, ok := p.Args["lon"].(float64); ok {
						lon = &v
					}
					if (lat == nil) != (lon == nil) {
						return nil, errors.New("lat and lon must be given together")
					}
					return deps.Locations.Resolve(p.Context, name, lat, lon), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// runIDField exposes the uint64 run id as a GraphQL Int.
func runIDField(p graphql.ResolveParams) (interface{}, error) {
	switch v := p.Source.(type) {
	case *domain.Scene:
		return int(v.RunID), nil
	case domain.Scene:
		return int(v.RunID), nil
	case domain.SceneSummary:
		return int(v.RunID), nil
	case *domain.SceneSummary:
		return int(v.RunID), nil
	}
	return nil, nil
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
