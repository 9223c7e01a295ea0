package runner

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/snapp-incubator/conformer/internal/config"
	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/storage"
	"github.com/snapp-incubator/conformer/internal/tester"
	"github.com/snapp-incubator/conformer/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryStorage struct {
	mu      sync.Mutex
	reports []storage.Report
}

func (m *memoryStorage) Store(_ context.Context, r storage.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memoryStorage) all() []storage.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Report(nil), m.reports...)
}

// backend serves replies keyed by request path and counts every hit.
func backend(t *testing.T, name string, replies map[string]string, hits *atomic.Int64) *transport.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		reply, ok := replies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			reply = `{"error":"not found"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return transport.New(name, srv.URL)
}

func routes(t *testing.T, c config.Config) *config.ComputedRouteConfigs {
	t.Helper()
	require.NoError(t, c.Validate())
	return c.PrecomputeRouteConfigs()
}

func validConfig() config.Config {
	c := config.Config{
		StorageType: "stdout",
		Upstreams: config.Upstreams{
			Reference: config.Upstream{Address: "http://reference"},
			Candidate: config.Upstream{Address: "http://candidate"},
		},
		GlobalConfig: config.GlobalConfig{StoreRespBodies: true},
	}
	c.Worker.Count = 1
	return c
}

var quizReplies = map[string]string{
	"/admin/quiz/list":   `{"quizzes":[{"quizId":1,"name":"Quiz A"}]}`,
	"/admin/quiz/1":      `{"quizId":1,"name":"Quiz A","description":""}`,
	"/admin/quiz/1/name": `{}`,
	"/clear":             `{}`,
}

var quizCases = []config.Case{
	{Name: "list", Method: http.MethodGet, Endpoint: "adminQuizList", Body: map[string]any{"token": "abc"}},
	{Name: "info", Method: http.MethodGet, Endpoint: "adminQuizId", Args: []any{1}},
	{Name: "rename", Method: http.MethodPut, Endpoint: "/admin/quiz/{}/name", Args: []any{1}, Body: map[string]any{"name": "Quiz B"}},
}

func TestRunAllPassing(t *testing.T) {
	ref := backend(t, "reference", quizReplies, nil)
	cand := backend(t, "candidate", quizReplies, nil)
	store := &memoryStorage{}

	r := New(tester.New(cand, ref), Options{Workers: 2, QueueSize: 4, Storage: store})
	summary, err := r.Run(context.Background(), quizCases)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Passed)
	assert.Zero(t, summary.Failed)
	assert.True(t, summary.OK())
	assert.Empty(t, summary.Failures())
	assert.Empty(t, store.all())

	for i, o := range summary.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, quizCases[i].Name, o.Case)
	}
}

func TestRunReportsShapeMismatch(t *testing.T) {
	candReplies := map[string]string{}
	for k, v := range quizReplies {
		candReplies[k] = v
	}
	candReplies["/admin/quiz/1"] = `{"quizId":"1","name":"Quiz A","description":""}`

	ref := backend(t, "reference", quizReplies, nil)
	cand := backend(t, "candidate", candReplies, nil)
	store := &memoryStorage{}

	r := New(tester.New(cand, ref), Options{
		Workers: 1,
		Storage: store,
		Routes:  routes(t, validConfig()),
	})
	summary, err := r.Run(context.Background(), quizCases)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.OK())

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "info", failures[0].Case)
	assert.Equal(t, failure.KindShapeMismatch, failures[0].Kind)
	assert.Equal(t, "/admin/quiz/1", failures[0].Endpoint)

	reports := store.all()
	require.Len(t, reports, 1)
	rep := reports[0]
	assert.Equal(t, "shape_diff", rep.ComparisonType)
	assert.Equal(t, "GET:/admin/quiz/{}", rep.Route)
	assert.Equal(t, "/quizId", rep.Path)
	assert.JSONEq(t, `"1"`, string(rep.ClientValue))
	assert.JSONEq(t, `1`, string(rep.ReferenceValue))
	assert.Equal(t, http.StatusOK, rep.CandidateStatusCode)
	require.NotNil(t, rep.CandidateResponsePayload)
	assert.Contains(t, *rep.CandidateResponsePayload, `"quizId":"1"`)
	assert.Nil(t, rep.RequestBody)
}

func TestRunSkipPathsFromRouteConfig(t *testing.T) {
	candReplies := map[string]string{"/admin/quiz/1": `{"quizId":1,"timeLastEdited":"yesterday"}`}
	refReplies := map[string]string{"/admin/quiz/1": `{"quizId":1,"timeLastEdited":1700000000}`}

	c := validConfig()
	c.RouteConfigs = map[string]config.RouteConfig{
		"GET:/admin/quiz/*": {SkipJSONPaths: []string{"timeLastEdited"}},
	}

	r := New(tester.New(backend(t, "candidate", candReplies, nil), backend(t, "reference", refReplies, nil)), Options{
		Routes: routes(t, c),
	})
	summary, err := r.Run(context.Background(), quizCases[1:2])
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Passed)
}

func TestRunSkipsConfiguredRoutes(t *testing.T) {
	var hits atomic.Int64
	ref := backend(t, "reference", quizReplies, &hits)
	cand := backend(t, "candidate", quizReplies, &hits)

	c := validConfig()
	c.SkipRoutes = []string{"DELETE:/clear", "PUT:/admin/quiz/*/name"}

	cases := append([]config.Case{{Name: "reset", Method: http.MethodDelete, Endpoint: "clear"}}, quizCases...)
	r := New(tester.New(cand, ref), Options{Routes: routes(t, c)})
	summary, err := r.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 2, summary.Skipped)
	assert.True(t, summary.Outcomes[0].Skipped)
	assert.Equal(t, "config", summary.Outcomes[0].SkipReason)
	assert.True(t, summary.Outcomes[3].Skipped)
	assert.Equal(t, int64(4), hits.Load())
}

func TestRunTransportFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := "http://" + l.Addr().String()
	require.NoError(t, l.Close())

	store := &memoryStorage{}
	r := New(tester.New(transport.New("candidate", dead), backend(t, "reference", quizReplies, nil)), Options{Storage: store})
	summary, err := r.Run(context.Background(), quizCases[:1])
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	assert.Equal(t, failure.KindTransport, summary.Outcomes[0].Kind)

	reports := store.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "transport_error", reports[0].ComparisonType)
	assert.Empty(t, reports[0].Path)
}

func TestRunSerializationFailureIsNotSent(t *testing.T) {
	var hits atomic.Int64
	ref := backend(t, "reference", quizReplies, &hits)
	cand := backend(t, "candidate", quizReplies, &hits)

	cases := []config.Case{{
		Name:     "nested query",
		Method:   http.MethodGet,
		Endpoint: "adminQuizList",
		Body:     map[string]any{"filter": map[string]any{"owner": 1}},
	}}
	summary, err := New(tester.New(cand, ref), Options{}).Run(context.Background(), cases)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	assert.Equal(t, failure.KindSerialization, summary.Outcomes[0].Kind)
	assert.Zero(t, hits.Load())
}

func TestRunFailFast(t *testing.T) {
	candReplies := map[string]string{"/admin/quiz/list": `{"quizzes":{}}`}
	refReplies := map[string]string{"/admin/quiz/list": `{"quizzes":[]}`}

	cases := []config.Case{
		{Name: "first", Method: http.MethodGet, Endpoint: "adminQuizList"},
		{Name: "second", Method: http.MethodGet, Endpoint: "adminQuizList"},
		{Name: "third", Method: http.MethodGet, Endpoint: "adminQuizList"},
	}
	r := New(tester.New(backend(t, "candidate", candReplies, nil), backend(t, "reference", refReplies, nil)), Options{
		Workers:  1,
		FailFast: true,
	})
	summary, err := r.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, "first", summary.Failures()[0].Case)
	for _, o := range summary.Outcomes[1:] {
		assert.Equal(t, "fail_fast", o.SkipReason)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(tester.New(backend(t, "candidate", quizReplies, nil), backend(t, "reference", quizReplies, nil)), Options{})
	summary, err := r.Run(ctx, quizCases)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	assert.Equal(t, 3, summary.Skipped)
	for _, o := range summary.Outcomes {
		assert.Equal(t, "cancelled", o.SkipReason)
	}
}

func TestRunRateLimited(t *testing.T) {
	r := New(tester.New(backend(t, "candidate", quizReplies, nil), backend(t, "reference", quizReplies, nil)), Options{
		Workers: 4,
		Limiter: rate.NewLimiter(rate.Limit(1000), 1),
	})
	summary, err := r.Run(context.Background(), quizCases)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Passed)
}

func TestRunLimiterRefusal(t *testing.T) {
	var hits atomic.Int64
	r := New(tester.New(backend(t, "candidate", quizReplies, &hits), backend(t, "reference", quizReplies, &hits)), Options{
		Limiter: rate.NewLimiter(10, 0),
	})
	summary, err := r.Run(context.Background(), quizCases)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	require.NotNil(t, summary)

	assert.Equal(t, 3, summary.Skipped)
	for _, o := range summary.Outcomes {
		assert.Equal(t, "rate_limit", o.SkipReason)
	}
	assert.Zero(t, hits.Load())
}

func TestRunInvalidCase(t *testing.T) {
	r := New(tester.New(transport.New("candidate", "http://candidate"), transport.New("reference", "http://reference")), Options{})

	tests := []struct {
		name string
		c    config.Case
	}{
		{"unknown endpoint", config.Case{Method: http.MethodGet, Endpoint: "adminQuizzes"}},
		{"missing argument", config.Case{Method: http.MethodGet, Endpoint: "adminQuizId"}},
		{"extra argument", config.Case{Method: http.MethodGet, Endpoint: "adminQuizList", Args: []any{1}}},
		{"unsupported body", config.Case{Method: http.MethodPost, Endpoint: "adminQuiz", Body: struct{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := r.Run(context.Background(), []config.Case{tt.c})
			assert.Error(t, err)
			assert.Nil(t, summary)
		})
	}
}
