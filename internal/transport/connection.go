package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 512 * 1024 // 512KB

// ErrNotConnected is returned by Send when no channel is open
var ErrNotConnected = errors.New("not connected")

// Handler receives the inbound frames of a connection, one at a time and in
// arrival order, followed by a single HandleClose when the receive loop ends.
type Handler interface {
	HandleFrame(frame []byte)
	HandleClose(err error)
}

// Options holds the websocket timing configuration
type Options struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	Header     http.Header
	TLSConfig  *tls.Config // nil uses the system defaults
}

// link is one dialled websocket and its goroutines
type link struct {
	ws          *websocket.Conn
	writeMux    sync.Mutex
	isConnected atomic.Bool
	done        chan struct{}
	exited      chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// Connection owns at most one websocket channel to a relay. Reconnecting is
// always explicit: a closed channel is never redialled by the connection.
type Connection struct {
	opts    Options
	handler Handler

	mu      sync.Mutex
	current *link
}

// NewConnection creates a connection delivering inbound frames to handler
func NewConnection(opts Options, handler Handler) *Connection {
	return &Connection{opts: opts, handler: handler}
}

// Connect closes any open channel, then dials endpoint and starts the
// receive loop. The previous loop has delivered HandleClose before the new
// dial starts. Connect must not be called from within the Handler.
func (c *Connection) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		debug.Info("Replacing existing relay connection")
		c.current.close(c.opts.WriteWait)
		<-c.current.exited
		c.current = nil
	}

	debug.Info("Dialing relay: %s", endpoint)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.WriteWait,
		TLSClientConfig:  c.opts.TLSConfig,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, c.opts.Header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			debug.Error("Relay handshake failed with status %d: %s", resp.StatusCode, string(body))
			return fmt.Errorf("failed to connect to relay: status %d: %w", resp.StatusCode, err)
		}
		debug.Error("Relay connection failed with no response: %v", err)
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	l := &link{
		ws:     ws,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	l.isConnected.Store(true)
	c.current = l

	go c.readPump(l)
	go c.pingLoop(l)

	debug.Info("Successfully established relay connection")
	return nil
}

// Send writes one text frame. The whole frame is written or none of it.
func (c *Connection) Send(frame []byte) error {
	c.mu.Lock()
	l := c.current
	c.mu.Unlock()

	if l == nil || !l.isConnected.Load() {
		debug.Warning("Dropping outbound frame: %v", ErrNotConnected)
		return ErrNotConnected
	}

	l.writeMux.Lock()
	defer l.writeMux.Unlock()

	if err := l.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		l.isConnected.Store(false)
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := l.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		debug.Error("Failed to send frame: %v", err)
		l.isConnected.Store(false)
		return fmt.Errorf("failed to send frame: %w", err)
	}
	debug.Debug("Sent frame of %d bytes", len(frame))
	return nil
}

// Connected reports whether a channel is open
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.isConnected.Load()
}

// Close releases the channel and waits for the receive loop to finish. It is
// safe to call multiple times.
func (c *Connection) Close() error {
	c.mu.Lock()
	l := c.current
	c.current = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	err := l.close(c.opts.WriteWait)
	<-l.exited
	return err
}

// readPump is the single receive loop of a link
func (c *Connection) readPump(l *link) {
	var readErr error
	defer func() {
		debug.Info("Receive loop closing, marking connection as disconnected")
		l.isConnected.Store(false)
		l.close(c.opts.WriteWait)
		c.handler.HandleClose(readErr)
		close(l.exited)
	}()

	l.ws.SetReadLimit(maxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	l.ws.SetPingHandler(func(appData string) error {
		if err := l.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			return err
		}
		err := l.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			debug.Error("Failed to send pong: %v", err)
			return err
		}
		return nil
	})

	for {
		msgType, data, err := l.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debug.Error("Unexpected relay close: %v", err)
			} else {
				debug.Info("Relay connection closed: %v", err)
			}
			readErr = err
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.handler.HandleFrame(data)
	}
}

// pingLoop keeps the link alive until it is closed
func (c *Connection) pingLoop(l *link) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				debug.Error("Failed to send ping: %v", err)
				l.isConnected.Store(false)
				l.close(c.opts.WriteWait)
				return
			}
		}
	}
}

// close sends a close frame and tears the socket down once
func (l *link) close(writeWait time.Duration) error {
	l.closeOnce.Do(func() {
		l.isConnected.Store(false)
		close(l.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			debug.Debug("Close frame not sent: %v", err)
		}
		l.closeErr = l.ws.Close()
	})
	return l.closeErr
}
