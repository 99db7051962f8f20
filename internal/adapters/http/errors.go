package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vtfk/departuretime/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, bad_gateway, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errBadGateway returns a 502 error.
func errBadGateway(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadGateway, "bad_gateway", msg)
}

// departureError maps a use case error onto a response. A request deadline
// surfaces from the use case as an upstream request error.
func departureError(c *fiber.Ctx, err error) error {
	switch {
	case domain.IsInvalidInput(err):
		return errBadRequest(c, err.Error())
	case domain.IsUpstream(err):
		return errBadGateway(c, err.Error())
	default:
		return errInternal(c, "internal error")
	}
}
