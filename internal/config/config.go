package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects how jobs reach the cracking server
type Mode string

const (
	// ModeRelay pairs with a desktop through a websocket relay room
	ModeRelay Mode = "relay"
	// ModeDirect talks to the cracking server over plain HTTP and polls for status
	ModeDirect Mode = "direct"
)

// Default configuration values
const (
	DefaultMode         = ModeRelay
	DefaultRelayURL     = "ws://localhost:8765/ws"
	DefaultServerURL    = "http://localhost:5000"
	DefaultPollInterval = 5 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultWriteWait    = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultPingPeriod   = 54 * time.Second
	DefaultLogCapacity  = 1000
)

// Environment keys understood by ApplyEnv
const (
	EnvMode         = "KH_REMOTE_MODE"
	EnvRelayURL     = "KH_RELAY_URL"
	EnvServerURL    = "KH_SERVER_URL"
	EnvPollInterval = "KH_POLL_INTERVAL"
	EnvHTTPTimeout  = "KH_HTTP_TIMEOUT"
	EnvWriteWait    = "KH_WRITE_WAIT"
	EnvPongWait     = "KH_PONG_WAIT"
	EnvPingPeriod   = "KH_PING_PERIOD"
	EnvLogCapacity  = "KH_LOG_CAPACITY"
	EnvCAFile       = "KH_CA_FILE"
	EnvTLSInsecure  = "KH_TLS_SKIP_VERIFY"
)

// Config holds the client configuration
type Config struct {
	Mode         Mode          `yaml:"mode"`
	RelayURL     string        `yaml:"relay_url"`
	ServerURL    string        `yaml:"server_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	WriteWait    time.Duration `yaml:"write_wait"`
	PongWait     time.Duration `yaml:"pong_wait"`
	PingPeriod   time.Duration `yaml:"ping_period"`
	LogCapacity  int           `yaml:"log_capacity"`

	// CAFile is an optional PEM bundle trusted for wss:// and https:// in
	// addition to the system roots
	CAFile        string `yaml:"ca_file"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
}

// Default returns a configuration populated with the built-in defaults
func Default() *Config {
	return &Config{
		Mode:         DefaultMode,
		RelayURL:     DefaultRelayURL,
		ServerURL:    DefaultServerURL,
		PollInterval: DefaultPollInterval,
		HTTPTimeout:  DefaultHTTPTimeout,
		WriteWait:    DefaultWriteWait,
		PongWait:     DefaultPongWait,
		PingPeriod:   DefaultPingPeriod,
		LogCapacity:  DefaultLogCapacity,
	}
}

/*
 * Load resolves the configuration from, lowest priority first:
 *   1. built-in defaults
 *   2. the YAML file at configPath (skipped when empty)
 *   3. the process environment
 *   4. the .env file at envPath (skipped when empty or missing)
 *
 * Command line flags are applied by the caller on top of the result.
 */
func Load(configPath, envPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.MergeFile(configPath); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			envMap, err := godotenv.Read(envPath)
			if err != nil {
				debug.Error("Failed to read env file %s: %v", envPath, err)
				return nil, fmt.Errorf("failed to read env file: %w", err)
			}
			cfg.ApplyEnv(env.FromMap(envMap))
		} else {
			debug.Debug("No env file at %s", envPath)
		}
	}

	return cfg, nil
}

// MergeFile overlays the values present in a YAML file onto the configuration
func (c *Config) MergeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		debug.Error("Failed to open config file %s: %v", path, err)
		return fmt.Errorf("error opening config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		debug.Error("Failed to decode config file %s: %v", path, err)
		return fmt.Errorf("error decoding config file: %w", err)
	}
	debug.Info("Loaded configuration file: %s", path)
	return nil
}

// ApplyEnv overrides fields with values found through lookup. Invalid values
// are logged and ignored.
func (c *Config) ApplyEnv(lookup env.LookupFunc) {
	if v, ok := lookup(EnvMode); ok && v != "" {
		c.Mode = Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvRelayURL); ok && v != "" {
		c.RelayURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.ServerURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvCAFile); ok && v != "" {
		c.CAFile = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTLSInsecure); ok && v != "" {
		c.TLSSkipVerify = env.ParseBool(v)
	}
	applyDuration(lookup, EnvPollInterval, &c.PollInterval)
	applyDuration(lookup, EnvHTTPTimeout, &c.HTTPTimeout)
	applyDuration(lookup, EnvWriteWait, &c.WriteWait)
	applyDuration(lookup, EnvPongWait, &c.PongWait)
	applyDuration(lookup, EnvPingPeriod, &c.PingPeriod)

	if v, ok := lookup(EnvLogCapacity); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			debug.Warning("Invalid %s value: %s, keeping %d", EnvLogCapacity, v, c.LogCapacity)
		} else {
			c.LogCapacity = n
		}
	}
}

func applyDuration(lookup env.LookupFunc, key string, dst *time.Duration) {
	value, ok := lookup(key)
	if !ok || value == "" {
		return
	}
	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		debug.Warning("Invalid %s value: %s, keeping %v", key, value, *dst)
		return
	}
	debug.Debug("Using %s: %v", key, duration)
	*dst = duration
}

// Validate reports the first configuration problem found
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRelay:
		if err := checkURL(c.RelayURL, "ws", "wss", "http", "https"); err != nil {
			return fmt.Errorf("invalid relay URL: %w", err)
		}
	case ModeDirect:
		if err := checkURL(c.ServerURL, "http", "https"); err != nil {
			return fmt.Errorf("invalid server URL: %w", err)
		}
	default:
		return fmt.Errorf("unknown mode %q (expected %q or %q)", c.Mode, ModeRelay, ModeDirect)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 || c.PingPeriod <= 0 {
		return fmt.Errorf("websocket timings must be positive")
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping period (%v) must be shorter than pong wait (%v)", c.PingPeriod, c.PongWait)
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("log capacity must be positive")
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
