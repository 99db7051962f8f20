package entur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vtfk/departuretime/internal/core/domain"
	"github.com/vtfk/departuretime/internal/pkg/metrics"
	"github.com/vtfk/departuretime/internal/pkg/telemetry"
)

// ClientNameHeader identifies the consumer to Entur.
const ClientNameHeader = "ET-Client-Name"

const maxResponseBytes = 10 << 20

// Client talks to the JourneyPlanner GraphQL API.
// It implements ports.DepartureSource.
type Client struct {
	http       *http.Client
	url        string
	clientName string
	query      Query
}

// NewClient creates a Client for the given endpoint. A nil httpClient uses a
// plain http.Client; deadlines come from the request context.
func NewClient(url, clientName string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:       httpClient,
		url:        url,
		clientName: clientName,
		query:      DepartureTimesQuery(),
	}
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
}

// graphQLResponse keeps pointers so that an absent field can be told apart
// from an empty one.
type graphQLResponse struct {
	Data *struct {
		StopPlace *stopPlaceResponse `json:"stopPlace"`
	} `json:"data"`
	Errors *[]GraphQLError `json:"errors"`
}

type stopPlaceResponse struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	EstimatedCalls *[]estimatedCallResponse `json:"estimatedCalls"`
}

type estimatedCallResponse struct {
	ExpectedDepartureTime string `json:"expectedDepartureTime"`
}

// GraphQLError is one entry of a GraphQL errors list.
type GraphQLError struct {
	Message string `json:"message"`
}

// EstimatedCalls fetches the departures of q.LineID from q.StopID after q.Date.
func (c *Client) EstimatedCalls(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "entur.EstimatedCalls",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			telemetry.AttrStopID.String(q.StopID),
			telemetry.AttrLineID.String(q.LineID),
			telemetry.AttrDate.String(q.Date),
			telemetry.AttrUpstream.String(c.url),
		),
	)
	defer span.End()

	start := time.Now()
	sp, outcome, err := c.do(ctx, q)
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	metrics.UpstreamRequests.WithLabelValues(outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(telemetry.AttrCalls.Int(len(sp.EstimatedCalls)))
	return sp, nil
}

func (c *Client) do(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, string, error) {
	req, err := c.createRequest(ctx, q)
	if err != nil {
		return nil, metrics.OutcomeTransport, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, metrics.OutcomeTransport, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, metrics.OutcomeTransport, fmt.Errorf("read response: %w", err)
	}

	var gr graphQLResponse
	decodeErr := json.Unmarshal(body, &gr)

	// A GraphQL error list wins over the HTTP status.
	if decodeErr == nil && gr.Errors != nil {
		return nil, metrics.OutcomeGraphQLError, fmt.Errorf("%w: %s", domain.ErrUpstreamGraphQL, joinMessages(*gr.Errors))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, metrics.OutcomeHTTPError, fmt.Errorf("unexpected status %d from journey planner", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, metrics.OutcomeBadResponse, fmt.Errorf("decode response: %w", decodeErr)
	}

	sp, err := toStopPlace(gr)
	if err != nil {
		return nil, metrics.OutcomeBadResponse, err
	}
	return sp, metrics.OutcomeOK, nil
}

func (c *Client) createRequest(ctx context.Context, q domain.DepartureQuery) (*http.Request, error) {
	payload, err := json.Marshal(graphQLRequest{
		Query:         c.query.Text,
		OperationName: c.query.Operation,
		Variables: map[string]any{
			"id":        q.StopID,
			"startTime": q.Date,
			"lines":     []string{q.LineID},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ClientNameHeader, c.clientName)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func toStopPlace(gr graphQLResponse) (*domain.StopPlace, error) {
	if gr.Data == nil || gr.Data.StopPlace == nil {
		return nil, fmt.Errorf("response has no data.stopPlace")
	}
	if gr.Data.StopPlace.EstimatedCalls == nil {
		return nil, fmt.Errorf("response has no data.stopPlace.estimatedCalls")
	}

	raw := *gr.Data.StopPlace.EstimatedCalls
	sp := &domain.StopPlace{
		ID:             gr.Data.StopPlace.ID,
		Name:           gr.Data.StopPlace.Name,
		EstimatedCalls: make([]domain.EstimatedCall, 0, len(raw)),
	}
	for i, call := range raw {
		t, err := time.Parse(time.RFC3339, call.ExpectedDepartureTime)
		if err != nil {
			return nil, fmt.Errorf("estimatedCalls[%d].expectedDepartureTime: %w", i, err)
		}
		sp.EstimatedCalls = append(sp.EstimatedCalls, domain.EstimatedCall{ExpectedDepartureTime: t})
	}
	return sp, nil
}

func joinMessages(errs []GraphQLError) string {
	if len(errs) == 0 {
		return "empty error list"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
