package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// Config holds the client side TLS settings for wss:// and https:// endpoints
type Config struct {
	CAFile             string
	InsecureSkipVerify bool
}

// LoadTLSConfig builds the client TLS configuration. It returns nil when no
// setting differs from the Go defaults.
func (c *Config) LoadTLSConfig() (*tls.Config, error) {
	if c.CAFile == "" && !c.InsecureSkipVerify {
		return nil, nil
	}

	debug.Info("Loading TLS configuration")
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if c.CAFile != "" {
		pool, err := loadCertPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
		debug.Info("Trusting CA certificates from %s", c.CAFile)
	}

	if c.InsecureSkipVerify {
		debug.Warning("TLS certificate verification is disabled")
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// loadCertPool returns the system roots plus the certificates in caFile
func loadCertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		debug.Debug("System cert pool unavailable, using CA file only: %v", err)
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate from %s", caFile)
	}
	return pool, nil
}
