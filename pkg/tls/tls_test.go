package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a self-signed CA certificate and its key, returning
// their paths. The certificate doubles as the server certificate.
func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "weatherdash-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewServerTLSConfig(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	cfg, err := NewServerTLSConfig(certFile, keyFile, certFile)
	if err != nil {
		t.Fatalf("NewServerTLSConfig: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected server certificate to be loaded")
	}
}

func TestNewServerTLSConfig_Errors(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name                      string
		certFile, keyFile, caFile string
	}{
		{name: "empty cert", keyFile: keyFile, caFile: certFile},
		{name: "empty key", certFile: certFile, caFile: certFile},
		{name: "empty ca", certFile: certFile, keyFile: keyFile},
		{name: "missing file", certFile: certFile, keyFile: keyFile, caFile: "/nonexistent/ca.pem"},
		{name: "bad ca", certFile: certFile, keyFile: keyFile, caFile: garbage},
		{name: "bad key pair", certFile: garbage, keyFile: keyFile, caFile: certFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServerTLSConfig(tt.certFile, tt.keyFile, tt.caFile); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "complete", cfg: Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}},
		{name: "missing paths", cfg: Config{Enabled: true, CertFile: certFile}, wantErr: true},
		{name: "nonexistent", cfg: Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: "/nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
