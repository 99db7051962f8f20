package domain

import "errors"

var (
	// ErrInvalidArgument is returned when stop, date or line is missing.
	ErrInvalidArgument = errors.New("quayId, date and line must be provided")

	// ErrInvalidDateFormat is returned when the date cannot be read as a timestamp.
	ErrInvalidDateFormat = errors.New("Invalid date format. Must be ISO 8601")

	// ErrUpstreamGraphQL is returned when the journey planner answers with a
	// GraphQL error list.
	ErrUpstreamGraphQL = errors.New("Error in GraphQL response")

	// ErrUpstreamRequest hides transport failures and unexpected response shapes.
	ErrUpstreamRequest = errors.New("Error fetching departure times from EnTur GraphQL API")
)

// IsInvalidInput reports whether err was caused by the caller's input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrInvalidDateFormat)
}

// IsUpstream reports whether err was caused by the journey planner.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamGraphQL) || errors.Is(err, ErrUpstreamRequest)
}
