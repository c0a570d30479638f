package runner

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/config"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/session"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// Direct mode HTTP protocol revision sent with every request
const (
	ProtocolVersionHeader = "X-Protocol-Version"
	ProtocolVersion       = "1"
)

// maxResponseSize caps how much of a direct mode response body is read
const maxResponseSize = 1 << 20

// submitRequest is the body of POST /attack
type submitRequest struct {
	Hash     string `json:"hash"`
	HashType string `json:"hashType"`
	Wordlist string `json:"wordlist"`
	Rules    string `json:"rules,omitempty"`
	Mask     string `json:"mask,omitempty"`
}

// statusResponse is returned by both POST /attack and GET /attack/{id}.
// crackedPassword is the older single result field.
type statusResponse struct {
	JobID           string   `json:"jobId"`
	Status          string   `json:"status"`
	Output          string   `json:"output,omitempty"`
	Error           string   `json:"error,omitempty"`
	Cracked         []string `json:"cracked,omitempty"`
	CrackedPassword string   `json:"crackedPassword,omitempty"`
}

// PollRunner submits attacks to a direct HTTP server and polls for status.
// Only one job is polled at a time; a new submission cancels the previous poll.
type PollRunner struct {
	cfg     *config.Config
	session *session.Session
	client  *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollRunner creates a poll runner for cfg.ServerURL. tlsConfig may be nil.
func NewPollRunner(cfg *config.Config, s *session.Session, tlsConfig *tls.Config) *PollRunner {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	if tlsConfig != nil {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		}
	}
	return &PollRunner{
		cfg:     cfg,
		session: s,
		client:  client,
	}
}

// Submit posts the attack and starts polling its status
func (p *PollRunner) Submit(ctx context.Context, req jobs.AttackRequest) (string, error) {
	if req.Mode == "" {
		p.session.Append(GuidanceNoMode)
		return "", nil
	}
	if req.Hash == "" {
		p.session.Append(GuidanceNoHash)
		return "", nil
	}

	p.Stop()

	var resp statusResponse
	err := p.doJSON(ctx, http.MethodPost, p.cfg.AttackURL(), &submitRequest{
		Hash:     req.Hash,
		HashType: req.Mode,
		Wordlist: req.Wordlist,
		Rules:    req.Rules,
		Mask:     req.Mask,
	}, &resp)
	if err != nil {
		p.session.Append(session.ErrorPrefix + err.Error())
		return "", err
	}
	if resp.JobID == "" {
		err := fmt.Errorf("server returned no job id")
		p.session.Append(session.ErrorPrefix + err.Error())
		return "", err
	}

	p.session.BeginJob(resp.JobID)
	p.session.Append(fmt.Sprintf("attack sent: job %s", resp.JobID))
	debug.Info("Attack %s submitted to %s", resp.JobID, p.cfg.ServerURL)

	if resp.Status != "" {
		ev, err := resp.event()
		if err != nil {
			p.session.Append(session.ErrorPrefix + err.Error())
			return resp.JobID, nil
		}
		p.session.Apply(ev)
		if ev.Status.IsTerminal() {
			return resp.JobID, nil
		}
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.poll(pollCtx, resp.JobID, done)
	return resp.JobID, nil
}

// Stop cancels the running poll and waits for it to exit
func (p *PollRunner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current poll ends on its own or is stopped
func (p *PollRunner) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// poll requests the job status once per interval until the job is terminal,
// a request fails or ctx is cancelled. The ticker keeps a fixed rate and
// drops ticks that fall due while a request is in flight.
func (p *PollRunner) poll(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	url := p.cfg.AttackStatusURL(jobID)
	for {
		select {
		case <-ctx.Done():
			debug.Debug("Polling for job %s cancelled", jobID)
			return
		case <-ticker.C:
		}

		var resp statusResponse
		if err := p.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
			if ctx.Err() != nil {
				return
			}
			debug.Error("Status request for job %s failed: %v", jobID, err)
			p.session.Append(fmt.Sprintf("%sstatus request for job %s failed: %v", session.ErrorPrefix, jobID, err))
			return
		}
		if resp.JobID == "" {
			resp.JobID = jobID
		}

		ev, err := resp.event()
		if err != nil {
			debug.Error("Bad status for job %s: %v", jobID, err)
			p.session.Append(session.ErrorPrefix + err.Error())
			return
		}
		p.session.Apply(ev)

		if ev.Status.IsTerminal() {
			debug.Info("Job %s finished with status %s", jobID, ev.Status)
			return
		}
	}
}

// event converts a response into the status event the relay would carry
func (r statusResponse) event() (protocol.JobStatus, error) {
	status, err := jobs.ParseStatus(r.Status)
	if err != nil {
		return protocol.JobStatus{}, fmt.Errorf("job %s: %w", r.JobID, err)
	}

	cracked := append([]string(nil), r.Cracked...)
	if r.CrackedPassword != "" && !contains(cracked, r.CrackedPassword) {
		cracked = append(cracked, r.CrackedPassword)
	}

	return protocol.JobStatus{
		JobID:   r.JobID,
		Status:  status,
		Output:  r.Output,
		Error:   r.Error,
		Cracked: cracked,
	}, nil
}

func (p *PollRunner) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(ProtocolVersionHeader, ProtocolVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
