package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/jobstore"
	"github.com/BaSui01/jobflow/manager"
)

func newStreamServer(t *testing.T) (*httptest.Server, *manager.JobManager, *events.Registry) {
	t.Helper()
	cache := jobstore.NewMemoryJobStore(jobstore.DefaultMemoryConfig(), nil)
	jobs := manager.New(cache, nil, manager.DefaultConfig(), nil, nil)
	reg := events.NewRegistry(nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/jobs/{id}/events", NewStreamHandler(jobs, reg, nil).HandleStream)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, jobs, reg
}

func TestStreamDeliversEventsUntilDone(t *testing.T) {
	srv, jobs, reg := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, jobs.CreateJob(ctx, &job.Record{
		ID: "job_1", Task: "write a report", Status: job.StatusRunning,
	}))
	reg.Register("job_1")
	reg.Publish(events.PhaseStart("job_1", "outline"))
	reg.Publish(events.ReasoningUpdate("job_1", "outline", "listing sections"))
	reg.Publish(events.Done("job_1"))

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/v1/jobs/job_1/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var got []events.Type
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure after the done sentinel ends the stream.
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev.Type)
		if ev.Terminal() {
			// Drain the close frame.
			_, _, err = conn.Read(ctx)
			assert.Error(t, err)
			break
		}
	}
	assert.Equal(t, []events.Type{events.TypePhaseStart, events.TypeReasoningUpdate, events.TypeDone}, got)
}

func TestStreamUnknownJob(t *testing.T) {
	srv, _, _ := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/v1/jobs/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamJobWithoutQueue(t *testing.T) {
	srv, jobs, _ := newStreamServer(t)
	require.NoError(t, jobs.CreateJob(context.Background(), &job.Record{
		ID: "job_1", Task: "t",
	}))

	resp, err := http.Get(srv.URL + "/v1/jobs/job_1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	rr := httptest.NewRecorder()
	h.HandleLiveness(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}
