package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/internal/ctxkeys"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/jobstore"
	"github.com/BaSui01/jobflow/manager"
)

type handlerFixture struct {
	jobs     *manager.JobManager
	hitl     *hitl.Manager
	handler  *JobHandler
	mux      *http.ServeMux
	launched []string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	cache := jobstore.NewMemoryJobStore(jobstore.DefaultMemoryConfig(), nil)
	jobs := manager.New(cache, nil, manager.DefaultConfig(), nil, nil)
	hm := hitl.NewManager(jobs, nil, nil)

	f := &handlerFixture{jobs: jobs, hitl: hm}
	f.handler = NewJobHandler(jobs, hm, func(jobID string) {
		f.launched = append(f.launched, jobID)
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", f.handler.HandleSubmitJob)
	mux.HandleFunc("GET /v1/jobs/{id}", f.handler.HandleGetJob)
	mux.HandleFunc("GET /v1/jobs/{id}/prompt", f.handler.HandleGetPrompt)
	mux.HandleFunc("POST /v1/jobs/{id}/response", f.handler.HandleSubmitResponse)
	f.mux = mux
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body, identity string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if identity != "" {
		req = req.WithContext(ctxkeys.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)

	var envelope Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	return rr, envelope
}

func TestSubmitJob(t *testing.T) {
	f := newHandlerFixture(t)

	rr, envelope := f.do(t, http.MethodPost, "/v1/jobs", `{"task":"write a report"}`, "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.True(t, envelope.Success)

	data := envelope.Data.(map[string]any)
	jobID := data["job_id"].(string)
	assert.True(t, strings.HasPrefix(jobID, "job_"))
	assert.Equal(t, string(job.StatusPending), data["status"])
	assert.Equal(t, []string{jobID}, f.launched)
}

func TestSubmitJobRejectsEmptyTask(t *testing.T) {
	f := newHandlerFixture(t)

	rr, envelope := f.do(t, http.MethodPost, "/v1/jobs", `{"task":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, CodeInvalidRequest, envelope.Error.Code)
	assert.Empty(t, f.launched)
}

func TestSubmitJobRejectsUnknownFields(t *testing.T) {
	f := newHandlerFixture(t)
	rr, _ := f.do(t, http.MethodPost, "/v1/jobs", `{"task":"x","bogus":1}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetJob(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.jobs.CreateJob(context.Background(), &job.Record{
		ID: "job_1", Task: "write a report", Status: job.StatusRunning,
	}))

	rr, envelope := f.do(t, http.MethodGet, "/v1/jobs/job_1", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := envelope.Data.(map[string]any)
	assert.Equal(t, "job_1", data["id"])
	assert.Equal(t, string(job.StatusRunning), data["status"])

	rr, envelope = f.do(t, http.MethodGet, "/v1/jobs/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, CodeNotFound, envelope.Error.Code)
}

func TestGetJobOwnership(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.jobs.CreateJob(context.Background(), &job.Record{
		ID: "job_1", Owner: "alice", Task: "secret report",
	}))

	rr, envelope := f.do(t, http.MethodGet, "/v1/jobs/job_1", "", "bob")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, CodeForbidden, envelope.Error.Code)

	rr, _ = f.do(t, http.MethodGet, "/v1/jobs/job_1", "", "alice")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetPrompt(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.jobs.CreateJob(ctx, &job.Record{
		ID: "job_1", Task: "write a report", Status: job.StatusRunning,
	}))
	_, err := f.jobs.UpdateJob(ctx, "job_1", job.Patch{
		Status:   statusPtr(job.StatusPendingUserInput),
		HITLType: job.StrPtr("clarify"),
		HITLData: map[string]any{"questions": []any{"Q1?"}},
	})
	require.NoError(t, err)

	rr, envelope := f.do(t, http.MethodGet, "/v1/jobs/job_1/prompt", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := envelope.Data.(map[string]any)
	assert.Equal(t, string(job.StatusPendingUserInput), data["status"])
	assert.Equal(t, "clarify", data["hitl_type"])

	rr, _ = f.do(t, http.MethodGet, "/v1/jobs/missing/prompt", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubmitResponseOutcomes(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.jobs.CreateJob(ctx, &job.Record{
		ID: "pending", Task: "t", Status: job.StatusPendingUserInput,
	}))
	require.NoError(t, f.jobs.CreateJob(ctx, &job.Record{
		ID: "busy", Task: "t", Status: job.StatusRunning,
	}))
	require.NoError(t, f.jobs.CreateJob(ctx, &job.Record{
		ID: "owned", Owner: "alice", Task: "t", Status: job.StatusPendingUserInput,
	}))

	body := `{"response":{"answers":{"Q1":"A1"}}}`

	rr, envelope := f.do(t, http.MethodPost, "/v1/jobs/pending/response", body, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(hitl.OutcomeAccepted), envelope.Data.(map[string]any)["outcome"])

	rr, envelope = f.do(t, http.MethodPost, "/v1/jobs/busy/response", body, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(hitl.OutcomeIgnored), envelope.Data.(map[string]any)["outcome"])

	rr, envelope = f.do(t, http.MethodPost, "/v1/jobs/ghost/response", body, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, CodeNotFound, envelope.Error.Code)

	rr, envelope = f.do(t, http.MethodPost, "/v1/jobs/owned/response", body, "bob")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, CodeForbidden, envelope.Error.Code)
}

func statusPtr(s job.Status) *job.Status { return &s }
