package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/broadcast"
	apperrors "github.com/fabgilson/scrumboard-live/internal/platform/errors"
	"github.com/fabgilson/scrumboard-live/pkg/wire"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-publish-key-0123456789"

type sentFrame struct {
	group   string
	payload []byte
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

func (s *recordingSender) SendToGroup(_ context.Context, group string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentFrame{group: group, payload: payload})
	return nil
}

func (s *recordingSender) frames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.sent...)
}

type fakeGroups map[string][]string

func (f fakeGroups) Count(key string) int64     { return int64(len(f[key])) }
func (f fakeGroups) Members(key string) []string { return f[key] }

func (f fakeGroups) Counts() map[string]int64 {
	counts := make(map[string]int64, len(f))
	for key, members := range f {
		counts[key] = int64(len(members))
	}
	return counts
}

type testServer struct {
	*Server
	sender  *recordingSender
	metrics *metrics.HTTPMetrics
}

type serverOption func(*Options)

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(o *Options) { o.HealthChecks = checks }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	sender := &recordingSender{}

	o := Options{
		PublishAPIKey: testAPIKey,
		Live: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Publisher:   broadcast.NewService(sender, clockwork.NewRealClock(), nil),
		Groups:      fakeGroups{"Project_7": {"conn-a", "conn-b"}},
		Metrics:     metrics.Handler(reg),
		HTTPMetrics: httpMetrics,
		Clock:       clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &testServer{Server: NewServer(o), sender: sender, metrics: httpMetrics}
}

func (s *testServer) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func apiKey() http.Header {
	return http.Header{"X-Api-Key": {testAPIKey}}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

const valueUpdatedBody = `{
	"event": "ValueUpdated",
	"audience": "project",
	"audience_id": 7,
	"entity_kind": "UserStory",
	"entity_id": 100,
	"value": {"Name": "Login page"},
	"editing_user_id": 99
}`

func TestBroadcast_RequiresAPIKey(t *testing.T) {
	srv := newTestServer(t)

	for _, header := range []http.Header{nil, {"X-Api-Key": {"wrong-key-wrong-key"}}} {
		rec := srv.do(http.MethodPost, "/internal/broadcast", valueUpdatedBody, header)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperrors.TypeUnauthorized, decodeError(t, rec).Type)
	}
	assert.Empty(t, srv.sender.frames())
}

func TestBroadcast_AcceptedAndDelivered(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/internal/broadcast", valueUpdatedBody, apiKey())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"accepted","group":"Project_7"}`, rec.Body.String())

	require.Eventually(t, func() bool { return len(srv.sender.frames()) == 1 }, time.Second, 5*time.Millisecond)
	frame := srv.sender.frames()[0]
	assert.Equal(t, "Project_7", frame.group)
	assert.JSONEq(t,
		`{"target":"ReceiveEntityUpdate","arguments":["UserStory",100,"{\"Name\":\"Login page\"}",99]}`,
		string(frame.payload))
}

func TestBroadcast_WaitForDelivery(t *testing.T) {
	srv := newTestServer(t)

	body := `{"event":"EditStarted","audience":"user","audience_id":42,"entity_kind":"Sprint","entity_id":3,"editing_user_id":42}`
	rec := srv.do(http.MethodPost, "/internal/broadcast?wait=true", body, apiKey())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"sent","group":"User_42"}`, rec.Body.String())
	frames := srv.sender.frames()
	require.Len(t, frames, 1)

	decoded, err := wire.Decode(frames[0].payload)
	require.NoError(t, err)
	ev, err := decoded.EntityEvent()
	require.NoError(t, err)
	assert.Equal(t, wire.TargetEditStarted, ev.Target)
	assert.Equal(t, "Sprint", ev.TypeName)
	assert.Equal(t, int64(42), ev.EditingUserID)
}

func TestBroadcast_TransportFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.sender.err = errors.New("redis circuit breaker open")

	body := `{"event":"Changed","audience":"project","audience_id":7,"entity_kind":"WorklogEntry","entity_id":5}`

	rec := srv.do(http.MethodPost, "/internal/broadcast?wait=true", body, apiKey())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeExternal, resp.Type)
	assert.Equal(t, "Project_7", resp.Fields["group"])
	assert.NotContains(t, rec.Body.String(), "circuit breaker", "cause is logged, not returned")

	rec = srv.do(http.MethodPost, "/internal/broadcast", body, apiKey())
	assert.Equal(t, http.StatusAccepted, rec.Code, "without wait the caller is not told about transport failures")
}

func TestBroadcast_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed", `{`, "request body must be a JSON broadcast request"},
		{"unknown event", `{"event":"Deleted","audience":"project","audience_id":7,"entity_kind":"Sprint","entity_id":1}`, `unknown event "Deleted"`},
		{"unknown kind", `{"event":"Changed","audience":"project","audience_id":7,"entity_kind":"userstory","entity_id":1}`, `unknown entity kind "userstory"`},
		{"unknown audience", `{"event":"Changed","audience":"team","audience_id":7,"entity_kind":"Sprint","entity_id":1}`, `unknown audience "team"`},
		{"zero audience id", `{"event":"Changed","audience":"user","audience_id":0,"entity_kind":"Sprint","entity_id":1}`, "audience_id must be positive"},
		{"missing value", `{"event":"ValueUpdated","audience":"user","audience_id":4,"entity_kind":"Sprint","entity_id":1}`, "value must be a JSON document for ValueUpdated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.do(http.MethodPost, "/internal/broadcast", tt.body, apiKey())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, apperrors.TypeValidation, resp.Type)
			assert.Equal(t, tt.message, resp.Error)
			assert.Equal(t, float64(1), testutil.ToFloat64(srv.metrics.ErrorsTotal.WithLabelValues("validation")))
		})
	}
}

func TestGroup(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/internal/groups/Project_7", "", apiKey())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"group":"Project_7","connections":2,"members":["conn-a","conn-b"]}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/internal/groups/User_5", "", apiKey())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"group":"User_5","connections":0,"members":[]}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/internal/groups/Team_5", "", apiKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/internal/groups", "", apiKey())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups":{"Project_7":2}}`, rec.Body.String())
}

func TestRoutes_LiveAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	srv.do(http.MethodGet, "/version", "", nil)
	rec = srv.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scrumboard_live_http_requests_total{method="GET",route="/version",status_code="200"} 1`)
}
