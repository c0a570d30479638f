package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// Status is the lifecycle state of a cracking job
type Status string

const (
	// StatusSubmitted is the client-side state between submission and the first report
	StatusSubmitted Status = "Submitted"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCracked   Status = "Cracked"
	StatusExhausted Status = "Exhausted"
	StatusAborted   Status = "Aborted"
)

var reportedStatuses = []Status{
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCracked,
	StatusExhausted,
	StatusAborted,
}

var (
	// ErrUnknownStatus is returned by ParseStatus for unrecognised values
	ErrUnknownStatus = errors.New("unknown job status")
	// ErrJobFinished is returned when a status arrives for a job already in a terminal state
	ErrJobFinished = errors.New("job already finished")
	// ErrInvalidTransition is returned for transitions the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseStatus converts a reported status string, ignoring case and
// surrounding whitespace. Submitted is never reported by a server.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	for _, status := range reportedStatuses {
		if strings.EqualFold(trimmed, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsTerminal reports whether no further progress follows this status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCracked, StatusExhausted, StatusAborted:
		return true
	default:
		return false
	}
}

// AttackRequest holds the user supplied parameters of an attack
type AttackRequest struct {
	Hash     string
	Mode     string // hash-mode code, e.g. "0" for MD5
	Wordlist string
	Rules    string
	Mask     string
}

// DefaultHistory is how many jobs a tracker remembers by default
const DefaultHistory = 64

// Tracker applies the job lifecycle Submitted -> Running -> terminal.
// Jobs it has never seen are treated as Submitted so that reports for jobs
// started elsewhere are still accepted. Once more than limit jobs are
// tracked the oldest finished ones are forgotten; active jobs are kept.
type Tracker struct {
	mu     sync.Mutex
	limit  int
	states map[string]Status
	order  []string // insertion order of states keys
}

// NewTracker creates an empty tracker remembering about limit jobs. A
// non-positive limit means DefaultHistory.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Tracker{limit: limit, states: make(map[string]Status)}
}

// Begin records a freshly submitted job
func (t *Tracker) Begin(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(jobID, StatusSubmitted)
}

// Advance moves a job to next. Reports after a terminal state are rejected
// with ErrJobFinished.
func (t *Tracker) Advance(jobID string, next Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.states[jobID]
	if !ok {
		current = StatusSubmitted
	}

	if current.IsTerminal() {
		debug.Debug("Ignoring %s for job %s: already %s", next, jobID, current)
		return fmt.Errorf("%w: job %s is %s", ErrJobFinished, jobID, current)
	}
	if next == StatusSubmitted || next == "" {
		return fmt.Errorf("%w: %s -> %q", ErrInvalidTransition, current, next)
	}

	t.setLocked(jobID, next)
	return nil
}

// State returns the last known status of a job
func (t *Tracker) State(jobID string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[jobID]
	return s, ok
}

// Len returns the number of remembered jobs
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

func (t *Tracker) setLocked(jobID string, status Status) {
	if _, ok := t.states[jobID]; !ok {
		t.order = append(t.order, jobID)
	}
	t.states[jobID] = status
	t.evictLocked()
}

// evictLocked drops the oldest finished jobs while over the limit
func (t *Tracker) evictLocked() {
	if len(t.states) <= t.limit {
		return
	}
	kept := t.order[:0]
	excess := len(t.states) - t.limit
	for _, id := range t.order {
		if excess > 0 && t.states[id].IsTerminal() {
			delete(t.states, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}
