package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtfk/departuretime/internal/adapters/entur"
	handler "github.com/vtfk/departuretime/internal/adapters/http"
	"github.com/vtfk/departuretime/internal/core/domain"
	"github.com/vtfk/departuretime/internal/core/usecases"
	"github.com/vtfk/departuretime/internal/pkg/logging"
)

// ---- Mock departure source ----

type mockSource struct {
	queries []domain.DepartureQuery
	fn      func(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error)
}

func (m *mockSource) EstimatedCalls(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
	m.queries = append(m.queries, q)
	if m.fn != nil {
		return m.fn(ctx, q)
	}
	return &domain.StopPlace{EstimatedCalls: []domain.EstimatedCall{}}, nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(src *mockSource) *handler.Dependencies {
	return makeDepsIn(src, time.UTC)
}

func makeDepsIn(src *mockSource, loc *time.Location) *handler.Dependencies {
	return &handler.Dependencies{
		Departures: usecases.NewDepartureService(src, loc, logging.Discard()),
		Options:    handler.Options{RoutePrefix: "/api"},
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	return b
}

func departurePath(stopID, date, lineID string) string {
	return fmt.Sprintf("/api/departureTime/%s/%s/%s", stopID, date, lineID)
}

// ---- Departure time handler tests ----

func TestDepartureTime_Success(t *testing.T) {
	src := &mockSource{fn: func(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
		return &domain.StopPlace{Name: "Skien", EstimatedCalls: []domain.EstimatedCall{
			{ExpectedDepartureTime: time.Date(2025, 12, 2, 8, 15, 0, 0, time.UTC)},
			{ExpectedDepartureTime: time.Date(2025, 12, 2, 8, 45, 30, 0, time.UTC)},
		}}, nil
	}}
	app := setupApp(makeDeps(src))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, departurePath("NSR:StopPlace:19984", "2025-12-02T00:00:000.000Z", "TEL:Line:8046"), nil)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			assert.JSONEq(t,
				`[{"expectedDepartureTime":"08:15:00"},{"expectedDepartureTime":"08:45:30"}]`,
				string(readBody(t, resp.Body)))
		})
	}

	require.Len(t, src.queries, 2)
	assert.Equal(t, domain.DepartureQuery{
		StopID: "NSR:StopPlace:19984",
		Date:   "2025-12-02T00:00:000.000Z",
		LineID: "TEL:Line:8046",
	}, src.queries[0])
}

func TestDepartureTime_EmptyListIsArray(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	req := httptest.NewRequest("GET", departurePath("NSR:StopPlace:1", "2025-12-02T00:00:000.000Z", "TEL:Line:1"), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "[]", string(readBody(t, resp.Body)))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestDepartureTime_DecodesPathSegments(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)

	src := &mockSource{}
	app := setupApp(makeDepsIn(src, oslo))

	req := httptest.NewRequest("GET", departurePath("NSR%3AStopPlace%3A19984", "2025-12-02", "TEL%3ALine%3A8046"), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	require.Len(t, src.queries, 1)
	assert.Equal(t, "NSR:StopPlace:19984", src.queries[0].StopID)
	assert.Equal(t, "TEL:Line:8046", src.queries[0].LineID)
	assert.Equal(t, "2025-12-02T00:00:00.000Z", src.queries[0].Date)
}

func TestDepartureTime_InvalidDate(t *testing.T) {
	src := &mockSource{}
	app := setupApp(makeDeps(src))

	req := httptest.NewRequest("GET", departurePath("NSR:StopPlace:1", "not-a-date", "TEL:Line:1"), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var apiErr handler.APIError
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &apiErr))
	assert.Equal(t, "bad_request", apiErr.Code)
	assert.Equal(t, domain.ErrInvalidDateFormat.Error(), apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Empty(t, src.queries)
}

func TestDepartureTime_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"graphql errors", fmt.Errorf("%w: boom", domain.ErrUpstreamGraphQL), domain.ErrUpstreamGraphQL.Error()},
		{"transport", fmt.Errorf("dial tcp: connection refused"), domain.ErrUpstreamRequest.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &mockSource{fn: func(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
				return nil, tt.err
			}}
			app := setupApp(makeDeps(src))

			req := httptest.NewRequest("GET", departurePath("NSR:StopPlace:1", "2025-12-02T00:00:000.000Z", "TEL:Line:1"), nil)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, 502, resp.StatusCode)

			var apiErr handler.APIError
			require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &apiErr))
			assert.Equal(t, "bad_gateway", apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.NotContains(t, apiErr.Message, "connection refused")
		})
	}
}

func TestDepartureTime_MissingSegmentIsNotRouted(t *testing.T) {
	src := &mockSource{}
	app := setupApp(makeDeps(src))

	req := httptest.NewRequest("GET", "/api/departureTime/NSR:StopPlace:1/2025-12-02", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Empty(t, src.queries)
}

func TestDepartureTime_EmptyRoutePrefix(t *testing.T) {
	deps := makeDeps(&mockSource{})
	deps.Options.RoutePrefix = ""
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/departureTime/NSR:StopPlace:1/2025-12-02T00:00:000.000Z/TEL:Line:1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

// The full chain against a fake journey planner.
func TestDepartureTime_ThroughEnturClient(t *testing.T) {
	var gotClientName string
	planner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientName = r.Header.Get(entur.ClientNameHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"stopPlace":{"name":"Skien","estimatedCalls":[{"expectedDepartureTime":"2025-12-02T08:15:00.000Z"}]}}}`)
	}))
	defer planner.Close()

	svc := usecases.NewDepartureService(entur.NewClient(planner.URL, "vtfk-test", nil), time.UTC, logging.Discard())
	app := setupApp(&handler.Dependencies{Departures: svc, Options: handler.Options{RoutePrefix: "/api"}})

	req := httptest.NewRequest("GET", departurePath("NSR:StopPlace:19984", "2025-12-02T00:00:000.000Z", "TEL:Line:8046"), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `[{"expectedDepartureTime":"08:15:00"}]`, string(readBody(t, resp.Body)))
	assert.Equal(t, "vtfk-test", gotClientName)
}

// ---- GraphQL ----

func TestGraphQL_DepartureTimes(t *testing.T) {
	src := &mockSource{fn: func(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
		return &domain.StopPlace{EstimatedCalls: []domain.EstimatedCall{
			{ExpectedDepartureTime: time.Date(2025, 12, 2, 8, 15, 0, 0, time.UTC)},
		}}, nil
	}}
	app := setupApp(makeDeps(src))

	body := `{"query":"query($s:String!,$d:String!,$l:String!){departureTimes(stopId:$s,date:$d,lineId:$l){expectedDepartureTime}}",
		"variables":{"s":"NSR:StopPlace:19984","d":"2025-12-02T00:00:000.000Z","l":"TEL:Line:8046"}}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t,
		`{"data":{"departureTimes":[{"expectedDepartureTime":"08:15:00"}]}}`,
		string(readBody(t, resp.Body)))
}

func TestGraphQL_ErrorsAreReported(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	body := `{"query":"{departureTimes(stopId:\"NSR:StopPlace:1\",date:\"not-a-date\",lineId:\"TEL:Line:1\"){expectedDepartureTime}}"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &result))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, domain.ErrInvalidDateFormat.Error(), result.Errors[0].Message)
}

func TestGraphQL_RequiresQuery(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

// ---- Operational endpoints ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReady_WithoutCache(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "not configured", body.Checks["cache"])
}

func TestReady_NoDepartureService(t *testing.T) {
	app := setupApp(&handler.Dependencies{})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	deps := makeDeps(&mockSource{})
	deps.Options.RateLimitMax = 2
	app := setupApp(deps)

	path := departurePath("NSR:StopPlace:1", "2025-12-02T00:00:000.000Z", "TEL:Line:1")
	var last int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		last = resp.StatusCode
	}
	assert.Equal(t, 429, last)
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupApp(makeDeps(&mockSource{}))

	_, err := app.Test(httptest.NewRequest("GET", departurePath("NSR:StopPlace:1", "2025-12-02T00:00:000.000Z", "TEL:Line:1"), nil), -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := string(readBody(t, resp.Body))
	assert.Contains(t, body, "departuretime_http_requests_total")
	assert.Contains(t, body, `path="/api/departureTime/:stopId/:date/:lineId"`)
}

func TestDepartureTime_DeadlineIsBadGateway(t *testing.T) {
	src := &mockSource{fn: func(ctx context.Context, q domain.DepartureQuery) (*domain.StopPlace, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	deps := makeDeps(src)
	deps.Options.RequestTimeout = 100 * time.Millisecond
	app := setupApp(deps)

	req := httptest.NewRequest("GET", departurePath("NSR:StopPlace:1", "2025-12-02T00:00:000.000Z", "TEL:Line:1"), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var apiErr handler.APIError
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &apiErr))
	assert.Equal(t, domain.ErrUpstreamRequest.Error(), apiErr.Message)
}
