// Package runner submits attacks and feeds job status into a session. The
// relay runner is push based: status arrives on the relay connection. The
// poll runner is pull based: it asks a direct HTTP server on a fixed cadence.
package runner

import (
	"context"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/google/uuid"
)

// Guidance lines appended when a submission is rejected before any network action
const (
	GuidanceNoRoom = "not paired: scan or enter a room id before starting an attack"
	GuidanceNoMode = "select a hash mode before starting an attack"
	GuidanceNoHash = "enter the hash to crack before starting an attack"
)

// Runner starts jobs. Submit returns the new job id, or an empty id and a nil
// error when a precondition failed and a guidance line was logged instead.
type Runner interface {
	Submit(ctx context.Context, req jobs.AttackRequest) (string, error)
	Stop()
}

// Sender transmits one encoded frame
type Sender interface {
	Send(frame []byte) error
}

func newJobID() string {
	return uuid.New().String()
}
