package ports

import (
	"context"

	"github.com/vtfk/departuretime/internal/core/domain"
)

// DepartureSource fetches estimated calls for a stop place from a journey planner.
//
// Implementations return an error wrapping domain.ErrUpstreamGraphQL when the
// planner answered with a GraphQL error list; any other error is treated as a
// failed request.
type DepartureSource interface {
	EstimatedCalls(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error)
}

// DepartureQuerier is the inbound port served by the HTTP and GraphQL adapters.
type DepartureQuerier interface {
	QueryDepartures(ctx context.Context, stopID, date, lineID string) ([]domain.DepartureTime, error)
}
