package approval

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Oscillant-Labs/crossform/pkg/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	Tool  string
	Input string
}

func escalated() decision.Decision[string] {
	return decision.Uncertain[string]("criteria could not be determined", 0.5)
}

func TestEnqueueReturnsImmediately(t *testing.T) {
	q := NewQueue[fakeRequest]()

	id := q.Enqueue(fakeRequest{Tool: "shell"}, escalated())
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, q.Pending())

	pa, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, "shell", pa.Request.Tool)
	assert.True(t, pa.Original.IsUncertain())
}

func TestResolveApprove(t *testing.T) {
	q := NewQueue[fakeRequest]()
	id := q.Enqueue(fakeRequest{Tool: "shell"}, escalated())

	d, err := q.Resolve(id, true, "operator-1", "verified manually")
	require.NoError(t, err)
	assert.True(t, d.IsApproved())
	assert.Contains(t, d.Reasoning, "operator-1")
	assert.Equal(t, "operator-1", d.Metadata["approver"])
	assert.Equal(t, 0, q.Pending())

	// the approval itself is on the evidence trail
	last := d.Evidence[len(d.Evidence)-1]
	assert.Equal(t, "human_approval", last.Criterion)
	assert.True(t, last.Evaluation.IsMark())
}

func TestResolveReject(t *testing.T) {
	q := NewQueue[fakeRequest]()
	id := q.Enqueue(fakeRequest{}, escalated())

	d, err := q.Resolve(id, false, "operator-2", "looks dangerous")
	require.NoError(t, err)
	assert.True(t, d.IsRejected())
	assert.Contains(t, d.Reasoning, "looks dangerous")
}

func TestResolveUnknownIDFailsLoudly(t *testing.T) {
	q := NewQueue[fakeRequest]()

	_, err := q.Resolve("no-such-id", true, "op", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// double resolution is also an explicit error
	id := q.Enqueue(fakeRequest{}, escalated())
	_, err = q.Resolve(id, true, "op", "")
	require.NoError(t, err)
	_, err = q.Resolve(id, true, "op", "")
	require.Error(t, err)
}

func TestCancel(t *testing.T) {
	q := NewQueue[fakeRequest]()
	id := q.Enqueue(fakeRequest{}, escalated())

	assert.True(t, q.Cancel(id))
	assert.False(t, q.Cancel(id), "cancel on a consumed id is a no-op")
	assert.False(t, q.Cancel("unknown"))
	assert.Equal(t, 0, q.Pending())
}

func TestCancelReleasesWaiter(t *testing.T) {
	q := NewQueue[fakeRequest]()

	var got decision.Decision[string]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got = q.EnqueueAndWait(fakeRequest{Tool: "shell"}, escalated(), 0)
	}()

	// wait until the entry is visible, then cancel it
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)
	var id string
	// the queue has exactly one entry; find its id through Get via Pending scan
	for i := 0; i < 1000 && id == ""; i++ {
		q.mu.Lock()
		for k := range q.entries {
			id = k
		}
		q.mu.Unlock()
	}
	require.NotEmpty(t, id)
	require.True(t, q.Cancel(id))

	wg.Wait()
	assert.True(t, got.IsRejected())
	assert.Contains(t, got.Reasoning, "cancelled")
}

func TestEnqueueAndWaitResolved(t *testing.T) {
	q := NewQueue[fakeRequest]()

	var got decision.Decision[string]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got = q.EnqueueAndWait(fakeRequest{Tool: "shell"}, escalated(), time.Second)
	}()

	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)
	var id string
	q.mu.Lock()
	for k := range q.entries {
		id = k
	}
	q.mu.Unlock()

	_, err := q.Resolve(id, true, "operator", "ok")
	require.NoError(t, err)

	wg.Wait()
	assert.True(t, got.IsApproved())
}

func TestEnqueueAndWaitTimeout(t *testing.T) {
	q := NewQueue[fakeRequest]()

	start := time.Now()
	d := q.EnqueueAndWait(fakeRequest{Tool: "shell"}, escalated(), 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, d.IsUncertain())
	assert.Contains(t, strings.ToLower(d.Reasoning), "timed out")
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, 0, q.Pending(), "timeout consumes the pending entry")
}

// Resolution and a 1ms timeout race for the same id; exactly one side must
// win, and the loser must observe "not found".
func TestResolveTimeoutExactlyOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := NewQueue[fakeRequest]()
		id, e := q.enqueue(fakeRequest{}, escalated())

		waiterDone := make(chan decision.Decision[string], 1)
		go func() {
			waiterDone <- q.waitOn(id, e, time.Millisecond)
		}()

		_, resolveErr := q.Resolve(id, true, "op", "")
		got := <-waiterDone

		if resolveErr == nil {
			assert.True(t, got.IsApproved(), "iteration %d: resolver won, waiter must see approval", i)
		} else {
			assert.Contains(t, resolveErr.Error(), "not found")
			assert.True(t, got.IsUncertain(), "iteration %d: timeout won, waiter must see timeout", i)
		}
		assert.Equal(t, 0, q.Pending())

		// whoever lost, the id is consumed for good
		_, err := q.Resolve(id, true, "op", "")
		require.Error(t, err)
	}
}

func TestConcurrentEnqueueAndResolve(t *testing.T) {
	q := NewQueue[int]()

	const n = 100
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = q.Enqueue(i, escalated())
	}
	require.Equal(t, n, q.Pending())

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := q.Resolve(id, true, "op", "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, q.Pending())
}
