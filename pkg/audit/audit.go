// Package audit keeps a tamper-evident, hash-chained log of decisions and
// actions. Each entry carries the SHA-256 digest of its own canonical content
// plus the digest of the preceding entry, so any mutation of a past record
// breaks verification of everything after it.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/Oscillant-Labs/crossform/pkg/canonicalize"
	"github.com/Oscillant-Labs/crossform/pkg/decision"
)

// Entry is one tamper-evident log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Outcome   string    `json:"outcome,omitempty"`
	Details   string    `json:"details,omitempty"`

	// PreviousHash links this entry to the preceding one.
	PreviousHash string `json:"previous_hash"`

	// Hash is the SHA-256 digest of this entry (including PreviousHash).
	Hash string `json:"hash"`
}

// Log manages an append-only sequence of chained entries. It is safe for
// concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	clock   func() time.Time
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Append adds a new entry to the log, linking it to the previous one.
func (l *Log) Append(actor, action, target, details string) (Entry, error) {
	return l.append(actor, action, target, "", details)
}

// AppendDecision records a terminal decision against the log. The entry's
// details carry the decision's audit rendering and its canonical content
// hash, so the record can be matched back to the exact decision later.
func (l *Log) AppendDecision(actor, target string, d decision.Decision[string]) (Entry, error) {
	contentHash, err := d.ContentHash()
	if err != nil {
		return Entry{}, fmt.Errorf("audit: hashing decision: %w", err)
	}
	details := fmt.Sprintf("%s\ncontent_hash=%s", d.AuditString(), contentHash)
	return l.append(actor, "decision", target, outcome(d), details)
}

func (l *Log) append(actor, action, target, outcome, details string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := ""
	if len(l.entries) > 0 {
		prevHash = l.entries[len(l.entries)-1].Hash
	}

	now := l.clock()
	entry := Entry{
		ID:           fmt.Sprintf("evt_%d_%d", now.UnixNano(), len(l.entries)),
		Timestamp:    now.UTC(),
		Actor:        actor,
		Action:       action,
		Target:       target,
		Outcome:      outcome,
		Details:      details,
		PreviousHash: prevHash,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return Entry{}, err
	}
	entry.Hash = hash

	l.entries = append(l.entries, entry)
	return entry, nil
}

// VerifyChain checks the integrity of the log: each entry's PreviousHash
// must match the hash of the preceding entry, and each entry's Hash must
// match its content.
func (l *Log) VerifyChain() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, entry := range l.entries {
		if i > 0 {
			if entry.PreviousHash != l.entries[i-1].Hash {
				return false, fmt.Errorf("chain broken at index %d: previous hash mismatch", i)
			}
		} else if entry.PreviousHash != "" {
			return false, fmt.Errorf("genesis entry has non-empty previous hash")
		}

		computed, err := entryHash(entry)
		if err != nil {
			return false, fmt.Errorf("failed to recompute hash at index %d: %w", i, err)
		}
		if computed != entry.Hash {
			return false, fmt.Errorf("integrity failure at index %d: computed %s, stored %s", i, computed, entry.Hash)
		}
	}

	return true, nil
}

// Entries returns a copy of the log records in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// entryHash calculates the SHA-256 digest of the entry fields, excluding the
// Hash field itself.
func entryHash(e Entry) (string, error) {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp,
		"actor":         e.Actor,
		"action":        e.Action,
		"target":        e.Target,
		"outcome":       e.Outcome,
		"details":       e.Details,
		"previous_hash": e.PreviousHash,
	}
	return canonicalize.CanonicalHash(data)
}

func outcome(d decision.Decision[string]) string {
	switch {
	case d.IsApproved():
		return "approved"
	case d.IsUncertain():
		return "uncertain"
	default:
		return "rejected"
	}
}
