package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/buffer"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// Fixed log lines
const (
	FinishedMarker = "--- job finished ---"
	NotFoundLine   = "password not found"
	SniffDoneLine  = "sniffing stopped"
	ErrorPrefix    = "error: "
	CrackedPrefix  = "cracked: "
)

// Session owns the pairing state and the job, cracked and capture logs.
// Writers are the transport receive loop and the runners; any goroutine may
// read through the snapshot accessors.
type Session struct {
	mu        sync.RWMutex
	roomID    string
	connected bool
	sniffing  bool

	log     *buffer.LineBuffer
	cracked *buffer.LineBuffer
	capture *buffer.LineBuffer
	tracker *jobs.Tracker

	subsMu  sync.Mutex
	subs    map[int]chan protocol.Event
	nextSub int
}

// New creates a session whose logs hold at most logCapacity lines each
func New(logCapacity int) *Session {
	return &Session{
		log:     buffer.NewLineBuffer(logCapacity),
		cracked: buffer.NewLineBuffer(logCapacity),
		capture: buffer.NewLineBuffer(logCapacity),
		tracker: jobs.NewTracker(jobs.DefaultHistory),
		subs:    make(map[int]chan protocol.Event),
	}
}

// HandleFrame decodes and applies one inbound frame
func (s *Session) HandleFrame(frame []byte) {
	s.Apply(protocol.Decode(frame))
}

// HandleClose records that the receive loop ended
func (s *Session) HandleClose(err error) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.sniffing = false
	s.mu.Unlock()

	if err != nil {
		debug.Info("Relay connection closed: %v", err)
	}
	if wasConnected {
		s.Append("disconnected")
	}
}

// Apply updates the session with a decoded event and notifies subscribers
func (s *Session) Apply(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.RoomJoined:
		s.mu.Lock()
		s.roomID = e.RoomID
		s.connected = true
		s.mu.Unlock()
		s.Append(fmt.Sprintf("connected to room %s", e.RoomID))

	case protocol.JobStatus:
		if !s.applyStatus(e) {
			return
		}

	case protocol.SniffOutput:
		s.capture.Add(e.Output)

	case protocol.SniffStopped:
		s.mu.Lock()
		s.sniffing = false
		s.mu.Unlock()
		s.Append(SniffDoneLine)

	case protocol.DecodeFailure:
		if e.Type != "" {
			s.Append(fmt.Sprintf("%scould not decode %s message: %s", ErrorPrefix, e.Type, e.Raw))
		} else {
			s.Append(fmt.Sprintf("%scould not decode message: %s", ErrorPrefix, e.Raw))
		}
		debug.Warning("Decode failure: %v", e.Err)

	case protocol.Unknown:
		debug.Debug("Ignoring message of type %s", e.Type)
		return

	default:
		debug.Warning("Unhandled event %T", ev)
		return
	}

	s.publish(ev)
}

// applyStatus writes the lines for a status report. It returns false when
// the report was dropped by the lifecycle tracker.
func (s *Session) applyStatus(e protocol.JobStatus) bool {
	if err := s.tracker.Advance(e.JobID, e.Status); err != nil {
		if !errors.Is(err, jobs.ErrJobFinished) {
			s.Append(ErrorPrefix + err.Error())
		}
		return false
	}

	s.Append(fmt.Sprintf("[job %s] status: %s", e.JobID, e.Status))

	if e.Output != "" {
		for _, line := range strings.Split(strings.TrimRight(e.Output, "\r\n"), "\n") {
			s.Append(strings.TrimRight(line, "\r"))
		}
	}
	if e.Error != "" {
		s.Append(ErrorPrefix + e.Error)
	}
	for _, secret := range e.Cracked {
		s.cracked.Add(secret)
		s.Append(CrackedPrefix + secret)
	}

	if (e.Status == jobs.StatusExhausted || e.Status == jobs.StatusAborted) && len(e.Cracked) == 0 {
		s.Append(NotFoundLine)
	}
	if e.Status.IsTerminal() {
		s.Append(FinishedMarker)
	}
	return true
}

// BeginJob clears the job and cracked logs and registers a new job
func (s *Session) BeginJob(jobID string) {
	s.log.Clear()
	s.cracked.Clear()
	s.tracker.Begin(jobID)
}

// Append adds a line to the job log
func (s *Session) Append(line string) {
	entry := s.log.Add(line)
	debug.Debug("log[%d]: %s", entry.Seq, line)
}

// SetRoom records a manually entered or scanned room identifier
func (s *Session) SetRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

// Reset clears the pairing state ahead of a reconnect
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
	s.connected = false
	s.sniffing = false
}

// SetSniffing records whether a capture was requested
func (s *Session) SetSniffing(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sniffing = on
	if on {
		s.capture.Clear()
	}
}

// Connected reports whether the relay confirmed a room on the current connection
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// RoomID returns the current room identifier, if any
func (s *Session) RoomID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID, s.roomID != ""
}

// Sniffing reports whether a capture is running
func (s *Session) Sniffing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sniffing
}

// Lines returns a snapshot of the job log
func (s *Session) Lines() []string {
	return s.log.Lines()
}

// LinesSince returns the job log entries newer than seq
func (s *Session) LinesSince(seq uint64) []buffer.Entry {
	return s.log.Since(seq)
}

// Cracked returns a snapshot of the cracked secrets of the current job
func (s *Session) Cracked() []string {
	return s.cracked.Lines()
}

// Capture returns the captured sniff output
func (s *Session) Capture() string {
	return s.capture.String()
}

// Stats describes how full the job log is
type Stats struct {
	Lines       int
	Capacity    int
	Dropped     uint64
	TrackedJobs int
}

// Stats returns the current log usage and the number of remembered jobs
func (s *Session) Stats() Stats {
	return Stats{
		Lines:       s.log.Count(),
		Capacity:    s.log.Capacity(),
		Dropped:     s.log.Dropped(),
		TrackedJobs: s.tracker.Len(),
	}
}

// JobState returns the lifecycle state of a job
func (s *Session) JobState(jobID string) (jobs.Status, bool) {
	return s.tracker.State(jobID)
}
