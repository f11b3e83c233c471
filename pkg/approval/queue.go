// Package approval holds escalated decisions until a human (or an external
// resolver) approves, rejects, or cancels them, or until a timeout elapses.
//
// Every pending escalation is keyed by a freshly generated opaque id and
// owns exactly one completion signal. Resolution, cancellation and timeout
// race for the same entry: whichever removes it from the pending map first
// completes the signal, and the others observe "not found". A waiter is
// released only by one of those three paths; there is no caller-side
// cancellation of the wait itself.
package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Oscillant-Labs/crossform/pkg/decision"
	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// PendingApproval is an escalation awaiting judgment. It is created on
// enqueue and never mutated; resolution removes it from the pending set.
type PendingApproval[R any] struct {
	ID       string
	Request  R
	Original decision.Decision[string]
	QueuedAt time.Time
}

type entry[R any] struct {
	pending PendingApproval[R]
	// done is buffered so the resolving side never blocks on a waiter.
	done chan decision.Decision[string]
}

// Queue is a concurrent store of pending escalations. The zero value is not
// usable; construct with NewQueue.
type Queue[R any] struct {
	mu      sync.Mutex
	entries map[string]*entry[R]
	clock   func() time.Time
}

// NewQueue creates an empty approval queue.
func NewQueue[R any]() *Queue[R] {
	return &Queue[R]{
		entries: make(map[string]*entry[R]),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (q *Queue[R]) WithClock(clock func() time.Time) *Queue[R] {
	q.clock = clock
	return q
}

// Enqueue registers an escalation and returns its id without blocking.
// The caller observes the terminal decision through Resolve or Cancel.
func (q *Queue[R]) Enqueue(request R, original decision.Decision[string]) string {
	id, _ := q.enqueue(request, original)
	return id
}

// EnqueueAndWait registers an escalation and blocks the calling goroutine
// until the entry is resolved or cancelled, or until timeout elapses when
// timeout > 0, whichever happens first. A timeout consumes the pending
// entry exactly as a resolution would, so at most one terminal decision is
// ever produced for an id.
func (q *Queue[R]) EnqueueAndWait(request R, original decision.Decision[string], timeout time.Duration) decision.Decision[string] {
	id, e := q.enqueue(request, original)
	return q.waitOn(id, e, timeout)
}

func (q *Queue[R]) waitOn(id string, e *entry[R], timeout time.Duration) decision.Decision[string] {
	if timeout <= 0 {
		return <-e.done
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-e.done:
		return d
	case <-timer.C:
		if _, ok := q.take(id); ok {
			return decision.Uncertain[string](
				fmt.Sprintf("approval %s timed out after %s with no resolution", id, timeout),
				decision.DefaultConfidence,
			).WithEvidence(e.pending.Original.Evidence...).WithMetadata("queue_id", id)
		}
		// A resolver removed the entry between the timer firing and the
		// take; its decision is already in flight on the buffered channel.
		return <-e.done
	}
}

// Resolve completes the pending escalation with a human judgment. An
// unknown id (already resolved, cancelled, timed out, or never enqueued)
// is an explicit error, never a silent no-op.
func (q *Queue[R]) Resolve(id string, approved bool, approver, notes string) (decision.Decision[string], error) {
	e, ok := q.take(id)
	if !ok {
		return decision.Decision[string]{}, fmt.Errorf("approval %q not found", id)
	}

	var d decision.Decision[string]
	if approved {
		d = decision.Approve("", fmt.Sprintf("escalation approved by %s", approver)).
			WithEvidence(e.pending.Original.Evidence...).
			WithEvidence(decision.NewEvidence("human_approval", form.Mark(), notes))
	} else {
		d = decision.Reject[string](fmt.Sprintf("escalation rejected by %s: %s", approver, notes)).
			WithEvidence(e.pending.Original.Evidence...).
			WithEvidence(decision.NewEvidence("human_approval", form.Void(), notes))
	}
	d = d.WithMetadata("queue_id", id).WithMetadata("approver", approver)
	if notes != "" {
		d = d.WithMetadata("notes", notes)
	}

	e.done <- d
	return d, nil
}

// Cancel atomically removes a pending escalation and completes its signal
// with a rejection noting the cancellation. Cancelling an unknown id is a
// no-op returning false.
func (q *Queue[R]) Cancel(id string) bool {
	e, ok := q.take(id)
	if !ok {
		return false
	}
	d := decision.Reject[string](fmt.Sprintf("escalation %s cancelled before resolution", id)).
		WithEvidence(e.pending.Original.Evidence...).
		WithMetadata("queue_id", id)
	e.done <- d
	return true
}

// Get returns a pending escalation by id.
func (q *Queue[R]) Get(id string) (PendingApproval[R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return PendingApproval[R]{}, false
	}
	return e.pending, true
}

// Pending returns the number of unresolved escalations.
func (q *Queue[R]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue[R]) enqueue(request R, original decision.Decision[string]) (string, *entry[R]) {
	e := &entry[R]{
		pending: PendingApproval[R]{
			ID:       uuid.New().String(),
			Request:  request,
			Original: original,
			QueuedAt: q.clock(),
		},
		done: make(chan decision.Decision[string], 1),
	}
	q.mu.Lock()
	q.entries[e.pending.ID] = e
	q.mu.Unlock()
	return e.pending.ID, e
}

// take removes the entry for id. Removal is the commit point that makes
// resolve, cancel and timeout mutually exclusive.
func (q *Queue[R]) take(id string) (*entry[R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if ok {
		delete(q.entries, id)
	}
	return e, ok
}
