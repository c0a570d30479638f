package config

import (
	"fmt"
	"net/url"
	"strings"
)

// RoomQueryParam is the query parameter used to join an existing relay room
const RoomQueryParam = "room_id"

// WebSocketURL returns the relay endpoint to dial. An http(s) relay address is
// mapped to ws(s). When roomID is not empty it is passed as a query parameter.
func (c *Config) WebSocketURL(roomID string) (string, error) {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}

	if roomID != "" {
		q := u.Query()
		q.Set(RoomQueryParam, roomID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// AttackURL returns the direct-mode job submission endpoint
func (c *Config) AttackURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/attack"
}

// AttackStatusURL returns the direct-mode status endpoint for a job
func (c *Config) AttackStatusURL(jobID string) string {
	return c.AttackURL() + "/" + url.PathEscape(jobID)
}
