package env

import (
	"os"
	"strings"

	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// LookupFunc resolves a configuration key, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// FromMap returns a LookupFunc over values read from a .env file
func FromMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// GetOrDefault returns the environment variable value or the default if not set
func GetOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	debug.Debug("%s not set, using default: %s", key, defaultValue)
	return defaultValue
}

// ParseBool reports whether value is "true", "1", "yes" or "y" (case insensitive)
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}
