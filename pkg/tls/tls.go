// Package tls builds server TLS configurations with mutual authentication for
// the HTTP and gRPC listeners.
//
// Configurations require TLS 1.3 and verify client certificates against the
// configured CA.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds TLS certificate file paths for a server.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate checks TLS configuration for security issues.
// Returns error if TLS is enabled but certificate files are missing or inaccessible.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return errors.New("tls enabled but cert/key/ca files not specified")
	}

	for _, path := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}

	return nil
}

// NewServerTLSConfig creates a TLS configuration for HTTP/gRPC servers with
// mutual authentication. The server certificate is loaded from certFile and
// keyFile; client certificates must chain to caFile. All files are PEM.
func NewServerTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := validateCertFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func validateCertFiles(certFile, keyFile, caFile string) error {
	if certFile == "" {
		return errors.New("certificate file path cannot be empty")
	}
	if keyFile == "" {
		return errors.New("key file path cannot be empty")
	}
	if caFile == "" {
		return errors.New("CA certificate file path cannot be empty")
	}

	for _, path := range []string{certFile, keyFile, caFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("certificate file %q: %w", path, err)
		}
	}

	return nil
}
