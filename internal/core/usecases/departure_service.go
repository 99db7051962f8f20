package usecases

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/araddon/dateparse"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vtfk/departuretime/internal/core/domain"
	"github.com/vtfk/departuretime/internal/core/ports"
	"github.com/vtfk/departuretime/internal/pkg/logging"
	"github.com/vtfk/departuretime/internal/pkg/metrics"
	"github.com/vtfk/departuretime/internal/pkg/telemetry"
)

// strictDate is the shape clients have always sent, e.g. 2025-12-02T00:00:000.000Z.
// Note the three-digit seconds field; it is forwarded untouched.
var strictDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{3}\.\d{3}Z$`)

// dateOnly matches ISO calendar dates without a time, which are read as UTC.
var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}(-\d{2})?$`)

const (
	isoMillis = "2006-01-02T15:04:05.000Z"
	timeOfDay = "15:04:05"
)

// DepartureService looks up expected departure times for a line at a stop place.
type DepartureService struct {
	source ports.DepartureSource
	loc    *time.Location
	logger *slog.Logger
}

// NewDepartureService creates a new DepartureService. Times of day are rendered
// in loc; a nil loc means time.Local and a nil logger means slog.Default().
func NewDepartureService(source ports.DepartureSource, loc *time.Location, logger *slog.Logger) *DepartureService {
	if loc == nil {
		loc = time.Local
	}
	return &DepartureService{source: source, loc: loc, logger: logger}
}

// QueryDepartures returns the expected departure times of lineID from stopID,
// starting at date. Errors are one of the domain sentinel errors.
func (s *DepartureService) QueryDepartures(ctx context.Context, stopID, date, lineID string) ([]domain.DepartureTime, error) {
	log := logging.FromContext(ctx, s.logger).With("component", "departures")

	ctx, span := telemetry.Tracer().Start(ctx, "DepartureService.QueryDepartures",
		trace.WithAttributes(
			telemetry.AttrStopID.String(stopID),
			telemetry.AttrLineID.String(lineID),
			telemetry.AttrDate.String(date),
		),
	)
	defer span.End()

	if stopID == "" || date == "" || lineID == "" {
		log.Error(domain.ErrInvalidArgument.Error(), "stop_id", stopID, "date", date, "line_id", lineID)
		span.SetStatus(codes.Error, "invalid argument")
		return nil, domain.ErrInvalidArgument
	}

	startTime, err := s.normalizeDate(log, date)
	if err != nil {
		span.SetStatus(codes.Error, "invalid date")
		return nil, err
	}

	q := domain.DepartureQuery{StopID: stopID, Date: startTime, LineID: lineID}
	log.Info("fetching departure times", "stop_id", q.StopID, "date", q.Date, "line_id", q.LineID)

	sp, err := s.source.EstimatedCalls(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream")
		if errors.Is(err, domain.ErrUpstreamGraphQL) {
			log.Error("error in GraphQL response", "error", err)
			return nil, domain.ErrUpstreamGraphQL
		}
		// the cause stays in the log; callers only see the generic error
		log.Error("error making request to EnTur GraphQL API", "error", err)
		return nil, domain.ErrUpstreamRequest
	}

	log.Info("fetched departure times",
		"count", len(sp.EstimatedCalls),
		"stop_place", sp.Name,
		"stop_id", q.StopID,
		"date", q.Date,
		"line_id", q.LineID,
	)
	metrics.DeparturesReturned.Observe(float64(len(sp.EstimatedCalls)))

	out := make([]domain.DepartureTime, 0, len(sp.EstimatedCalls))
	for _, call := range sp.EstimatedCalls {
		out = append(out, domain.DepartureTime{
			ExpectedDepartureTime: call.ExpectedDepartureTime.In(s.loc).Format(timeOfDay),
		})
	}
	return out, nil
}

// normalizeDate passes strictly shaped dates through and reserialises anything
// else that parses as a timestamp. Bare dates are UTC midnight; other zone-less
// inputs are read in the service location. The reserialised value is not re-checked.
func (s *DepartureService) normalizeDate(log *slog.Logger, date string) (string, error) {
	if strictDate.MatchString(date) {
		return date, nil
	}

	log.Warn("date format is not ISO 8601, attempting to convert", "date", date)
	loc := s.loc
	if dateOnly.MatchString(date) {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(date, loc)
	if err != nil {
		log.Error(domain.ErrInvalidDateFormat.Error(), "date", date, "error", err)
		return "", domain.ErrInvalidDateFormat
	}

	metrics.DateReformatted.Inc()
	return t.UTC().Format(isoMillis), nil
}
