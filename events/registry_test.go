package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil, nil)

	q1 := r.Register("j1")
	q1.Push(PhaseStart("j1", "outline"))

	// The duplicate registration hands back the same queue, events intact.
	q2 := r.Register("j1")
	assert.Same(t, q1, q2)
	assert.Equal(t, 1, q2.Len())
	assert.Equal(t, 1, r.Len())
}

func TestGetHasNoSideEffects(t *testing.T) {
	r := NewRegistry(nil, nil)

	_, ok := r.Get("never-registered")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	r.Register("j1")
	q, ok := r.Get("j1")
	require.True(t, ok)
	assert.NotNil(t, q)
}

func TestUnregisterDropsUnreadEvents(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register("j1")

	require.True(t, r.Publish(ReasoningUpdate("j1", "draft", "working")))
	r.Unregister("j1")

	_, ok := r.Get("j1")
	assert.False(t, ok)

	// Publishing after unregister is a silent drop.
	assert.False(t, r.Publish(Done("j1")))

	// Unregistering twice is harmless.
	r.Unregister("j1")
}

func TestQueueOrderAndDoneSentinel(t *testing.T) {
	r := NewRegistry(nil, nil)
	q := r.Register("j1")

	r.Publish(PhaseStart("j1", "outline"))
	r.Publish(ReasoningUpdate("j1", "outline", "listing sections"))
	r.Publish(StatusChange("j1", "running"))
	r.Publish(Done("j1"))

	done := make(chan struct{})
	var got []Type
	for {
		ev, ok := q.Next(done)
		require.True(t, ok)
		got = append(got, ev.Type)
		if ev.Terminal() {
			break
		}
	}
	assert.Equal(t, []Type{TypePhaseStart, TypeReasoningUpdate, TypeStatusChange, TypeDone}, got)
}

func TestNextBlocksUntilPush(t *testing.T) {
	q := newQueue()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ev, ok := q.Next(done)
		assert.True(t, ok)
		assert.Equal(t, TypeDone, ev.Type)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(Done("j1"))
	wg.Wait()
}

func TestNextHonorsDone(t *testing.T) {
	q := newQueue()
	done := make(chan struct{})
	close(done)

	_, ok := q.Next(done)
	assert.False(t, ok)
}

func TestTryNext(t *testing.T) {
	q := newQueue()
	_, ok := q.TryNext()
	assert.False(t, ok)

	q.Push(PhaseStart("j1", "outline"))
	ev, ok := q.TryNext()
	require.True(t, ok)
	assert.Equal(t, TypePhaseStart, ev.Type)
}

func TestPerJobIsolation(t *testing.T) {
	r := NewRegistry(nil, nil)
	qa := r.Register("job-a")
	qb := r.Register("job-b")

	r.Publish(PhaseStart("job-a", "outline"))
	r.Publish(Errorf("job-b", "phase failed"))

	eva, ok := qa.TryNext()
	require.True(t, ok)
	assert.Equal(t, "job-a", eva.JobID)
	assert.Equal(t, TypePhaseStart, eva.Type)
	_, ok = qa.TryNext()
	assert.False(t, ok, "job-b's event must not leak into job-a's queue")

	evb, ok := qb.TryNext()
	require.True(t, ok)
	assert.Equal(t, "job-b", evb.JobID)
	assert.Equal(t, TypeError, evb.Type)
}

func TestProperty_QueuePreservesOrderUnbounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := newQueue()
		n := rapid.IntRange(0, 500).Draw(t, "n")
		for i := 0; i < n; i++ {
			q.Push(Event{Type: TypeReasoningUpdate, JobID: "j", Message: string(rune('a' + i%26))})
		}
		if q.Len() != n {
			t.Fatalf("queue holds %d events, pushed %d", q.Len(), n)
		}
		for i := 0; i < n; i++ {
			ev, ok := q.TryNext()
			if !ok {
				t.Fatalf("event %d missing", i)
			}
			if want := string(rune('a' + i%26)); ev.Message != want {
				t.Fatalf("event %d out of order: got %q want %q", i, ev.Message, want)
			}
		}
	})
}
