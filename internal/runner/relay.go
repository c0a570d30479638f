package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/session"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/transport"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// RelayRunner sends commands to the paired desktop through the relay room.
// It never polls; status reports reach the session from the receive loop.
type RelayRunner struct {
	session *session.Session
	sender  Sender
	newID   func() string
}

// NewRelayRunner creates a runner sending through sender
func NewRelayRunner(s *session.Session, sender Sender) *RelayRunner {
	return &RelayRunner{
		session: s,
		sender:  sender,
		newID:   newJobID,
	}
}

// Submit sends an attack command to the current room
func (r *RelayRunner) Submit(ctx context.Context, req jobs.AttackRequest) (string, error) {
	roomID, ok := r.session.RoomID()
	if !ok {
		r.session.Append(GuidanceNoRoom)
		return "", nil
	}
	if req.Mode == "" {
		r.session.Append(GuidanceNoMode)
		return "", nil
	}
	if req.Hash == "" {
		r.session.Append(GuidanceNoHash)
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	jobID := r.newID()
	r.session.BeginJob(jobID)

	env, err := protocol.NewAttackEnvelope(roomID, protocol.AttackParams{
		JobID:    jobID,
		File:     req.Hash,
		Mode:     req.Mode,
		Wordlist: req.Wordlist,
		Rules:    req.Rules,
	})
	if err != nil {
		r.session.Append(session.ErrorPrefix + err.Error())
		return "", err
	}
	if err := r.send(env); err != nil {
		r.session.Append(fmt.Sprintf("%snot connected, job %s not sent", session.ErrorPrefix, jobID))
		return "", err
	}

	debug.Info("Attack %s sent to room %s (mode %s)", jobID, roomID, req.Mode)
	r.session.Append(fmt.Sprintf("attack sent: job %s", jobID))
	return jobID, nil
}

// StartSniff asks the desktop to start capturing on a remote host
func (r *RelayRunner) StartSniff(ctx context.Context, params protocol.SniffParams) error {
	roomID, ok := r.session.RoomID()
	if !ok {
		r.session.Append(GuidanceNoRoom)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	env, err := protocol.NewStartSniffEnvelope(roomID, params)
	if err != nil {
		r.session.Append(session.ErrorPrefix + err.Error())
		return err
	}
	if err := r.send(env); err != nil {
		r.session.Append(session.ErrorPrefix + "not connected, sniff not started")
		return err
	}

	r.session.SetSniffing(true)
	r.session.Append(fmt.Sprintf("sniffing started on %s", params.Host))
	return nil
}

// StopSniff asks the desktop to stop capturing
func (r *RelayRunner) StopSniff(ctx context.Context) error {
	roomID, ok := r.session.RoomID()
	if !ok {
		r.session.Append(GuidanceNoRoom)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.send(protocol.NewStopSniffEnvelope(roomID)); err != nil {
		r.session.Append(session.ErrorPrefix + "not connected, stop request not sent")
		return err
	}
	r.session.Append("stop requested")
	return nil
}

// Stop is a no-op: the relay runner owns no background work
func (r *RelayRunner) Stop() {}

func (r *RelayRunner) send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := r.sender.Send(frame); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			debug.Warning("%s not sent: %v", env.Type, err)
		} else {
			debug.Error("Failed to send %s: %v", env.Type, err)
		}
		return err
	}
	return nil
}
