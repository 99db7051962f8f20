package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema exposes the departure query as GraphQL, mirroring the REST route.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	departureTimeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DepartureTime",
		Fields: graphql.Fields{
			"expectedDepartureTime": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Expected local time of day, HH:MM:SS",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"departureTimes": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(departureTimeType))),
				Description: "Expected departure times of a line from a stop place",
				Args: graphql.FieldConfigArgument{
					"stopId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"date":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lineId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stopID, _ := p.Args["stopId"].(string)
					date, _ := p.Args["date"].(string)
					lineID, _ := p.Args["lineId"].(string)
					return deps.Departures.QueryDepartures(p.Context, stopID, date, lineID)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
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
