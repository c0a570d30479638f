package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/config"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/session"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 50 * time.Millisecond

// directServer fakes the direct mode HTTP API. Each status request
// returns the next scripted response; the last one repeats.
type directServer struct {
	*httptest.Server

	mu       sync.Mutex
	submit   statusResponse
	statuses []statusResponse
	received []submitRequest
	versions []string
	polls    []time.Time
	failPoll bool
}

func newDirectServer(t *testing.T, submit statusResponse, statuses ...statusResponse) *directServer {
	t.Helper()
	d := &directServer{submit: submit, statuses: statuses}

	r := mux.NewRouter()
	r.HandleFunc("/attack", d.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/attack/{jobId}", d.handleStatus).Methods(http.MethodGet)

	d.Server = httptest.NewServer(r)
	t.Cleanup(d.Close)
	return d
}

func (d *directServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.received = append(d.received, req)
	d.versions = append(d.versions, r.Header.Get(ProtocolVersionHeader))
	resp := d.submit
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (d *directServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.polls = append(d.polls, time.Now())
	d.versions = append(d.versions, r.Header.Get(ProtocolVersionHeader))
	if d.failPoll {
		d.mu.Unlock()
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	var resp statusResponse
	if len(d.statuses) > 0 {
		resp = d.statuses[0]
		if len(d.statuses) > 1 {
			d.statuses = d.statuses[1:]
		}
	}
	d.mu.Unlock()

	resp.JobID = mux.Vars(r)["jobId"]
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (d *directServer) pollTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.polls...)
}

func newTestPollRunner(t *testing.T, serverURL string) (*PollRunner, *session.Session) {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = config.ModeDirect
	cfg.ServerURL = serverURL
	cfg.PollInterval = testPollInterval
	cfg.HTTPTimeout = 2 * time.Second

	s := session.New(100)
	p := NewPollRunner(cfg, s, nil)
	t.Cleanup(p.Stop)
	return p, s
}

func TestPollRunner_PollsUntilTerminal(t *testing.T) {
	srv := newDirectServer(t,
		statusResponse{JobID: "job-1", Status: "Running"},
		statusResponse{Status: "Running"},
		statusResponse{Status: "Running"},
		statusResponse{Status: "Exhausted"},
	)
	p, s := newTestPollRunner(t, srv.URL)

	start := time.Now()
	id, err := p.Submit(context.Background(), jobs.AttackRequest{
		Hash:     "5f4dcc3b5aa765d61d8327deb882cf99",
		Mode:     "0",
		Wordlist: "rockyou.txt",
		Mask:     "?d?d?d",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	p.Wait()
	time.Sleep(3 * testPollInterval)

	polls := srv.pollTimes()
	require.Len(t, polls, 3)

	tolerance := 10 * time.Millisecond
	assert.GreaterOrEqual(t, polls[0].Sub(start), testPollInterval-tolerance)
	for i := 1; i < len(polls); i++ {
		assert.GreaterOrEqual(t, polls[i].Sub(polls[i-1]), testPollInterval-tolerance)
	}

	lines := s.Lines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, session.NotFoundLine, lines[len(lines)-2])
	assert.Equal(t, session.FinishedMarker, lines[len(lines)-1])

	state, ok := s.JobState("job-1")
	require.True(t, ok)
	assert.Equal(t, jobs.StatusExhausted, state)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.received, 1)
	assert.Equal(t, submitRequest{
		Hash:     "5f4dcc3b5aa765d61d8327deb882cf99",
		HashType: "0",
		Wordlist: "rockyou.txt",
		Mask:     "?d?d?d",
	}, srv.received[0])
	for _, v := range srv.versions {
		assert.Equal(t, ProtocolVersion, v)
	}
}

func TestPollRunner_LegacyCrackedPassword(t *testing.T) {
	srv := newDirectServer(t,
		statusResponse{JobID: "job-2", Status: "running"},
		statusResponse{Status: "COMPLETED", CrackedPassword: "letmein"},
	)
	p, s := newTestPollRunner(t, srv.URL)

	_, err := p.Submit(context.Background(), testAttack)
	require.NoError(t, err)
	p.Wait()

	assert.Equal(t, []string{"letmein"}, s.Cracked())
	lines := s.Lines()
	assert.Contains(t, lines, session.CrackedPrefix+"letmein")
	assert.Equal(t, session.FinishedMarker, lines[len(lines)-1])
	assert.Len(t, srv.pollTimes(), 1)
}

func TestPollRunner_TerminalOnSubmit(t *testing.T) {
	srv := newDirectServer(t, statusResponse{JobID: "job-3", Status: "Cracked", Cracked: []string{"password"}})
	p, s := newTestPollRunner(t, srv.URL)

	_, err := p.Submit(context.Background(), testAttack)
	require.NoError(t, err)
	p.Wait()
	time.Sleep(2 * testPollInterval)

	assert.Empty(t, srv.pollTimes())
	assert.Equal(t, []string{"password"}, s.Cracked())
}

func TestPollRunner_StopsOnFirstError(t *testing.T) {
	srv := newDirectServer(t, statusResponse{JobID: "job-4", Status: "Running"})
	srv.failPoll = true
	p, s := newTestPollRunner(t, srv.URL)

	_, err := p.Submit(context.Background(), testAttack)
	require.NoError(t, err)
	p.Wait()
	time.Sleep(3 * testPollInterval)

	assert.Len(t, srv.pollTimes(), 1)
	lines := s.Lines()
	assert.Contains(t, lines[len(lines)-1], "status request for job job-4 failed")
}

func TestPollRunner_SubmitFailure(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/attack", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	defer srv.Close()

	p, s := newTestPollRunner(t, srv.URL)

	id, err := p.Submit(context.Background(), testAttack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Empty(t, id)
	require.Len(t, s.Lines(), 1)
	assert.Contains(t, s.Lines()[0], session.ErrorPrefix)
}

func TestPollRunner_StopCancelsPolling(t *testing.T) {
	srv := newDirectServer(t,
		statusResponse{JobID: "job-5", Status: "Running"},
		statusResponse{Status: "Running"},
	)
	p, _ := newTestPollRunner(t, srv.URL)

	_, err := p.Submit(context.Background(), testAttack)
	require.NoError(t, err)

	time.Sleep(testPollInterval + testPollInterval/2)
	p.Stop()
	count := len(srv.pollTimes())
	time.Sleep(3 * testPollInterval)
	assert.Equal(t, count, len(srv.pollTimes()))
}

func TestPollRunner_Preconditions(t *testing.T) {
	srv := newDirectServer(t, statusResponse{JobID: "x", Status: "Running"})
	p, s := newTestPollRunner(t, srv.URL)

	id, err := p.Submit(context.Background(), jobs.AttackRequest{Hash: "h"})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, []string{GuidanceNoMode}, s.Lines())

	srv.mu.Lock()
	assert.Empty(t, srv.received)
	srv.mu.Unlock()
}

func TestStatusResponse_Event(t *testing.T) {
	tests := []struct {
		name    string
		resp    statusResponse
		want    []string
		wantErr bool
	}{
		{name: "list", resp: statusResponse{JobID: "j", Status: "Cracked", Cracked: []string{"a", "b"}}, want: []string{"a", "b"}},
		{name: "legacy field", resp: statusResponse{JobID: "j", Status: "Cracked", CrackedPassword: "a"}, want: []string{"a"}},
		{name: "both, no duplicate", resp: statusResponse{JobID: "j", Status: "Cracked", Cracked: []string{"a"}, CrackedPassword: "a"}, want: []string{"a"}},
		{name: "bad status", resp: statusResponse{JobID: "j", Status: "Paused"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.resp.event()
			if tt.wantErr {
				assert.ErrorIs(t, err, jobs.ErrUnknownStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Cracked)
		})
	}
}
