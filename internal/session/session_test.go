package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(lines []string, match func(string) bool) int {
	n := 0
	for _, l := range lines {
		if match(l) {
			n++
		}
	}
	return n
}

func TestSession_RoomJoinedTwice(t *testing.T) {
	s := New(100)

	s.HandleFrame([]byte(`{"type":"room_id","id":"first"}`))
	s.HandleFrame([]byte(`{"type":"room_id","id":"second"}`))

	lines := s.Lines()
	assert.Equal(t, 2, countLines(lines, func(l string) bool { return strings.HasPrefix(l, "connected") }))
	room, ok := s.RoomID()
	require.True(t, ok)
	assert.Equal(t, "second", room)
	assert.True(t, s.Connected())
}

func TestSession_CrackedStatus(t *testing.T) {
	s := New(100)

	s.Apply(protocol.JobStatus{
		JobID:   "job-1",
		Status:  jobs.StatusCracked,
		Cracked: []string{"hunter2"},
	})

	assert.Equal(t, []string{"hunter2"}, s.Cracked())
	lines := s.Lines()
	assert.Equal(t, 1, countLines(lines, func(l string) bool { return l == FinishedMarker }))
	assert.Equal(t, FinishedMarker, lines[len(lines)-1])
	assert.Contains(t, lines, CrackedPrefix+"hunter2")
	assert.NotContains(t, lines, NotFoundLine)
}

func TestSession_DuplicateTerminalIgnored(t *testing.T) {
	s := New(100)
	s.BeginJob("job-1")

	ev := protocol.JobStatus{JobID: "job-1", Status: jobs.StatusCracked, Cracked: []string{"hunter2"}}
	s.Apply(ev)
	s.Apply(ev)

	assert.Equal(t, []string{"hunter2"}, s.Cracked())
	assert.Equal(t, 1, countLines(s.Lines(), func(l string) bool { return l == FinishedMarker }))
}

func TestSession_StatusLines(t *testing.T) {
	tests := []struct {
		name     string
		event    protocol.JobStatus
		expected []string
	}{
		{
			name:  "running with multi-line output",
			event: protocol.JobStatus{JobID: "j", Status: jobs.StatusRunning, Output: "Session..: hashcat\r\nStatus...: Running\n"},
			expected: []string{
				"[job j] status: Running",
				"Session..: hashcat",
				"Status...: Running",
			},
		},
		{
			name:  "failed with error",
			event: protocol.JobStatus{JobID: "j", Status: jobs.StatusFailed, Error: "wordlist not found"},
			expected: []string{
				"[job j] status: Failed",
				ErrorPrefix + "wordlist not found",
				FinishedMarker,
			},
		},
		{
			name:  "exhausted without result",
			event: protocol.JobStatus{JobID: "j", Status: jobs.StatusExhausted},
			expected: []string{
				"[job j] status: Exhausted",
				NotFoundLine,
				FinishedMarker,
			},
		},
		{
			name:  "aborted without result",
			event: protocol.JobStatus{JobID: "j", Status: jobs.StatusAborted},
			expected: []string{
				"[job j] status: Aborted",
				NotFoundLine,
				FinishedMarker,
			},
		},
		{
			name:  "completed",
			event: protocol.JobStatus{JobID: "j", Status: jobs.StatusCompleted, Cracked: []string{"a", "b"}},
			expected: []string{
				"[job j] status: Completed",
				CrackedPrefix + "a",
				CrackedPrefix + "b",
				FinishedMarker,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(100)
			s.Apply(tt.event)
			assert.Equal(t, tt.expected, s.Lines())
		})
	}
}

func TestSession_DecodeFailure(t *testing.T) {
	s := New(100)

	assert.NotPanics(t, func() {
		s.HandleFrame([]byte("not json"))
	})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], ErrorPrefix))
	assert.Contains(t, lines[0], "not json")
}

func TestSession_InnerDecodeFailureNamesType(t *testing.T) {
	s := New(100)
	s.HandleFrame([]byte(`{"type":"job_status","payload":"{broken"}`))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "job_status")
	assert.Contains(t, lines[0], "{broken")
}

func TestSession_UnknownIgnored(t *testing.T) {
	s := New(100)
	events, cancel := s.Subscribe(4)
	defer cancel()

	s.HandleFrame([]byte(`{"type":"future_feature","payload":"{}"}`))

	assert.Empty(t, s.Lines())
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestSession_Sniffing(t *testing.T) {
	s := New(100)
	s.SetSniffing(true)
	assert.True(t, s.Sniffing())

	s.HandleFrame([]byte(`{"type":"sniff_output","payload":"{\"output\":\"GET /login \"}","room_id":"r"}`))
	s.HandleFrame([]byte(`{"type":"sniff_output","payload":"{\"output\":\"HTTP/1.1\"}","room_id":"r"}`))
	s.HandleFrame([]byte(`{"type":"sniff_stopped","payload":"","room_id":"r"}`))

	assert.Equal(t, "GET /login HTTP/1.1", s.Capture())
	assert.False(t, s.Sniffing())
	assert.Equal(t, []string{SniffDoneLine}, s.Lines())
}

func TestSession_BeginJobClearsLogs(t *testing.T) {
	s := New(100)
	s.Apply(protocol.JobStatus{JobID: "old", Status: jobs.StatusCracked, Cracked: []string{"x"}})
	require.NotEmpty(t, s.Lines())

	s.BeginJob("new")

	assert.Empty(t, s.Lines())
	assert.Empty(t, s.Cracked())
	state, ok := s.JobState("new")
	require.True(t, ok)
	assert.Equal(t, jobs.StatusSubmitted, state)
}

func TestSession_HandleCloseAndReset(t *testing.T) {
	s := New(100)
	s.HandleFrame([]byte(`{"type":"room_id","id":"r1"}`))
	require.True(t, s.Connected())

	s.HandleClose(nil)
	assert.False(t, s.Connected())
	assert.Equal(t, "disconnected", s.Lines()[len(s.Lines())-1])

	room, ok := s.RoomID()
	assert.True(t, ok, "room survives a dropped connection")
	assert.Equal(t, "r1", room)

	s.Reset()
	_, ok = s.RoomID()
	assert.False(t, ok)
}

func TestSession_Subscribe(t *testing.T) {
	s := New(100)
	events, cancel := s.Subscribe(8)

	s.HandleFrame([]byte(`{"type":"room_id","id":"r1"}`))
	s.Apply(protocol.JobStatus{JobID: "j", Status: jobs.StatusRunning})

	select {
	case ev := <-events:
		assert.Equal(t, protocol.RoomJoined{RoomID: "r1"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no room event")
	}
	select {
	case ev := <-events:
		status, ok := ev.(protocol.JobStatus)
		require.True(t, ok)
		assert.Equal(t, jobs.StatusRunning, status.Status)
	case <-time.After(time.Second):
		t.Fatal("no status event")
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestSession_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := New(100)
	_, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.HandleFrame([]byte(`{"type":"room_id","id":"r"}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, s.Lines(), 10)
}

func TestSession_ConcurrentReadDuringWrites(t *testing.T) {
	s := New(20)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Apply(protocol.JobStatus{JobID: "j", Status: jobs.StatusRunning, Output: "progress"})
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.Lines()
			_, _ = s.RoomID()
			_ = s.Connected()
		}
	}()
	wg.Wait()

	assert.Len(t, s.Lines(), 20)
}

func TestSession_Stats(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Append("line")
	}
	s.BeginJob("job-1")
	s.Append("after begin")

	st := s.Stats()
	assert.Equal(t, 1, st.Lines)
	assert.Equal(t, 3, st.Capacity)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 1, st.TrackedJobs)
}
