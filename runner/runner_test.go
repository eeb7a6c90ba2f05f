package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/jobstore"
	"github.com/BaSui01/jobflow/manager"
)

type testCore struct {
	jobs   *manager.JobManager
	hitl   *hitl.Manager
	events *events.Registry
	runner *Runner
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()
	cache := jobstore.NewMemoryJobStore(jobstore.DefaultMemoryConfig(), nil)
	jobs := manager.New(cache, nil, manager.DefaultConfig(), nil, nil)
	hm := hitl.NewManager(jobs, nil, nil)
	reg := events.NewRegistry(nil, nil)
	return &testCore{
		jobs:   jobs,
		hitl:   hm,
		events: reg,
		runner: New(jobs, hm, reg, nil),
	}
}

func (c *testCore) createJob(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, c.jobs.CreateJob(context.Background(), &job.Record{
		ID:     id,
		Task:   "write a report",
		Status: job.StatusPending,
	}))
}

// drain reads the job's stream until the done sentinel, with a deadline so a
// broken runner fails the test instead of hanging it.
func drain(t *testing.T, reg *events.Registry, jobID string) []events.Event {
	t.Helper()
	q, ok := reg.Get(jobID)
	require.True(t, ok, "queue must be registered")

	deadline := make(chan struct{})
	timer := time.AfterFunc(5*time.Second, func() { close(deadline) })
	defer timer.Stop()

	var out []events.Event
	for {
		ev, ok := q.Next(deadline)
		require.True(t, ok, "stream ended without done sentinel")
		out = append(out, ev)
		if ev.Terminal() {
			return out
		}
	}
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestRunCompletesAllPhases(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	c.createJob(t, "j1")

	phases := []Phase{
		{Name: "outline", Run: func(ctx context.Context, rc *RunContext) error {
			return rc.Progress(ctx, "listing sections")
		}},
		{Name: "draft", Run: func(ctx context.Context, rc *RunContext) error {
			rc.SetResult(map[string]any{"document": "final text"})
			return nil
		}},
	}

	require.NoError(t, c.runner.Run(ctx, "j1", phases))

	rec, err := c.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.Equal(t, "draft", rec.CurrentPhase)
	require.NotNil(t, rec.Result)

	got := eventTypes(drain(t, c.events, "j1"))
	assert.Equal(t, []events.Type{
		events.TypeStatusChange, // running
		events.TypePhaseStart,   // outline
		events.TypeReasoningUpdate,
		events.TypePhaseStart, // draft
		events.TypeStatusChange,
		events.TypeDone,
	}, got)
}

func TestRunMarksFailureAndClosesStream(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	c.createJob(t, "j1")

	boom := errors.New("source material unavailable")
	phases := []Phase{
		{Name: "research", Run: func(ctx context.Context, rc *RunContext) error {
			return boom
		}},
		{Name: "never-reached", Run: func(ctx context.Context, rc *RunContext) error {
			t.Fatal("phase after a failure must not run")
			return nil
		}},
	}

	err := c.runner.Run(ctx, "j1", phases)
	assert.ErrorIs(t, err, boom)

	rec, err := c.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, rec.Status)
	assert.Equal(t, boom.Error(), rec.Error)

	evs := drain(t, c.events, "j1")
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeDone, last.Type)
	assert.Equal(t, events.TypeError, evs[len(evs)-2].Type)
}

func TestRunUnknownJob(t *testing.T) {
	c := newTestCore(t)
	err := c.runner.Run(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, manager.ErrNotFound)
}

func TestRequestInputSuspendsUntilResponse(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	c.createJob(t, "j1")

	var received map[string]any
	phases := []Phase{
		{Name: "clarify", Run: func(ctx context.Context, rc *RunContext) error {
			answers, err := rc.RequestInput(ctx, job.ClarifyPayload{Questions: []string{"Q1?"}})
			if err != nil {
				return err
			}
			received = answers
			rc.SetResult("done with answers")
			return nil
		}},
	}

	runDone := make(chan error, 1)
	go func() { runDone <- c.runner.Run(ctx, "j1", phases) }()

	// The job reaches pending_user_input with the prompt payload durable.
	require.Eventually(t, func() bool {
		status, err := c.jobs.GetJobStatus(ctx, "j1")
		return err == nil && status == job.StatusPendingUserInput
	}, 5*time.Second, 5*time.Millisecond)

	prompt, err := c.hitl.GetPrompt(ctx, "j1", "")
	require.NoError(t, err)
	assert.Equal(t, "clarify", prompt.HITLType)
	assert.Contains(t, prompt.HITLData, "questions")

	outcome, err := c.hitl.SubmitResponse(ctx, "j1", map[string]any{"answers": map[string]any{"Q1": "A1"}}, "")
	require.NoError(t, err)
	require.Equal(t, hitl.OutcomeAccepted, outcome)

	require.NoError(t, <-runDone)
	require.NotNil(t, received)
	assert.Contains(t, received, "answers")

	rec, err := c.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.True(t, rec.HITLResolved())

	got := eventTypes(drain(t, c.events, "j1"))
	assert.Contains(t, got, events.TypeHITLRequired)
	assert.Equal(t, events.TypeDone, got[len(got)-1])
}

func TestRequestInputHonorsContext(t *testing.T) {
	c := newTestCore(t)
	c.createJob(t, "j1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	phases := []Phase{
		{Name: "confirm", Run: func(ctx context.Context, rc *RunContext) error {
			_, err := rc.RequestInput(ctx, job.ConfirmPayload{Summary: "plan"})
			return err
		}},
	}

	err := c.runner.Run(ctx, "j1", phases)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, err := c.jobs.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, rec.Status)
}

func TestScenarioFullLifecycle(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	c.createJob(t, "j1")

	_, err := c.jobs.UpdateJob(ctx, "j1", job.StatusPatch(job.StatusRunning))
	require.NoError(t, err)
	status, err := c.jobs.GetJobStatus(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, job.StatusRunning, status)

	_, err = c.jobs.UpdateJob(ctx, "j1", job.Patch{
		Status:   statusPtr(job.StatusPendingHITL),
		HITLType: job.StrPtr("clarify"),
		HITLData: job.ClarifyPayload{Questions: []string{"Q1?"}}.DataMap(),
	})
	require.NoError(t, err)

	prompt, err := c.hitl.GetPrompt(ctx, "j1", "")
	require.NoError(t, err)
	assert.Equal(t, job.StatusPendingHITL, prompt.Status)
	assert.Contains(t, prompt.HITLData, "questions")

	outcome, err := c.hitl.SubmitResponse(ctx, "j1", map[string]any{"answers": map[string]any{"Q1": "A1"}}, "")
	require.NoError(t, err)
	assert.Equal(t, hitl.OutcomeAccepted, outcome)

	rec, err := c.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, rec.Status)
	assert.Equal(t, true, rec.HITLData[job.ResolvedKey])
}

func statusPtr(s job.Status) *job.Status { return &s }
