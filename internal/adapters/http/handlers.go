package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
)

// DepartureTimeHandler returns the expected departure times of a line at a stop.
// GET|POST {prefix}/departureTime/:stopId/:date/:lineId
func DepartureTimeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		departures, err := deps.Departures.QueryDepartures(
			c.UserContext(),
			pathParam(c, "stopId"),
			pathParam(c, "date"),
			pathParam(c, "lineId"),
		)
		if err != nil {
			return departureError(c, err)
		}
		return c.JSON(departures)
	}
}

// pathParam returns a path segment with percent-escapes decoded.
func pathParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
