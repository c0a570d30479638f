// Package remote wires the session, the relay connection and the job runner
// selected by the configured mode into one client.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/config"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/runner"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/session"
	khtls "github.com/ZerkerEOD/krakenhashes/remote/internal/tls"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/transport"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
	"github.com/hashicorp/go-multierror"
)

var (
	// ErrRelayOnly is returned for operations that need a relay connection in direct mode
	ErrRelayOnly = errors.New("operation requires relay mode")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("client closed")
)

// GuidanceRelayOnly is logged when a relay-only action is requested in direct mode
const GuidanceRelayOnly = "packet capture is only available in relay mode"

// Client is the front-end facing API. The presentation layer calls these
// methods and renders the session.
type Client struct {
	cfg     *config.Config
	session *session.Session
	conn    *transport.Connection
	relay   *runner.RelayRunner
	runner  runner.Runner

	mu       sync.Mutex
	hashMode string
	closed   bool
}

// New validates cfg and builds a client for cfg.Mode
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := (&khtls.Config{
		CAFile:             cfg.CAFile,
		InsecureSkipVerify: cfg.TLSSkipVerify,
	}).LoadTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		session: session.New(cfg.LogCapacity),
	}

	switch cfg.Mode {
	case config.ModeDirect:
		c.runner = runner.NewPollRunner(cfg, c.session, tlsConfig)
	default:
		c.conn = transport.NewConnection(transport.Options{
			WriteWait:  cfg.WriteWait,
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
			TLSConfig:  tlsConfig,
		}, c.session)
		c.relay = runner.NewRelayRunner(c.session, c.conn)
		c.runner = c.relay
	}

	debug.Info("Remote client created in %s mode", cfg.Mode)
	return c, nil
}

// Session returns the session rendered by the front-end
func (c *Client) Session() *session.Session {
	return c.session
}

// Mode returns the configured operating mode
func (c *Client) Mode() config.Mode {
	return c.cfg.Mode
}

// Connect opens a fresh relay channel with no room. Any previous channel is
// closed and the pairing is cleared.
func (c *Client) Connect(ctx context.Context) error {
	return c.dial(ctx, "")
}

// Pair joins roomID: the room is recorded as entered and the relay is
// redialled with it. A later room-join confirmation overrides the entry.
func (c *Client) Pair(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	return c.dial(ctx, roomID)
}

func (c *Client) dial(ctx context.Context, roomID string) error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.conn == nil {
		return ErrRelayOnly
	}

	endpoint, err := c.cfg.WebSocketURL(roomID)
	if err != nil {
		return fmt.Errorf("failed to build relay URL: %w", err)
	}

	// The old receive loop must be gone before the pairing state is cleared,
	// or frames it still holds would restore the old room.
	if err := c.conn.Close(); err != nil {
		debug.Debug("Closing previous relay connection: %v", err)
	}

	c.session.Reset()
	if roomID != "" {
		c.session.SetRoom(roomID)
	}

	debug.Info("Connecting to relay %s", endpoint)
	if err := c.conn.Connect(ctx, endpoint); err != nil {
		c.session.Append(session.ErrorPrefix + err.Error())
		return err
	}
	return nil
}

// SelectMode sets the hash-mode code used by the next attack
func (c *Client) SelectMode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashMode = code
}

// HashMode returns the selected hash-mode code
func (c *Client) HashMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashMode
}

// Attack submits req through the runner for the configured mode. An empty
// req.Mode is filled from the selected hash mode.
func (c *Client) Attack(ctx context.Context, req jobs.AttackRequest) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	if req.Mode == "" {
		req.Mode = c.HashMode()
	}
	return c.runner.Submit(ctx, req)
}

// StartSniff starts a remote packet capture
func (c *Client) StartSniff(ctx context.Context, params protocol.SniffParams) error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.relay == nil {
		c.session.Append(GuidanceRelayOnly)
		return ErrRelayOnly
	}
	return c.relay.StartSniff(ctx, params)
}

// StopSniff stops the remote packet capture
func (c *Client) StopSniff(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.relay == nil {
		c.session.Append(GuidanceRelayOnly)
		return ErrRelayOnly
	}
	return c.relay.StopSniff(ctx)
}

// Close stops polling, asks the desktop to end a running capture and closes
// the relay channel. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var result *multierror.Error

	c.runner.Stop()
	if c.relay != nil && c.session.Sniffing() && c.conn.Connected() {
		if err := c.relay.StopSniff(context.Background()); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to stop capture: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close relay connection: %w", err))
		}
	}
	if err := debug.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to flush log: %w", err))
	}

	return result.ErrorOrNil()
}

func (c *Client) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
