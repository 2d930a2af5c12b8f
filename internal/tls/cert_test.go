package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSelfSigned(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "netmon.crt")
	keyPath := filepath.Join(dir, "netmon.key")

	if err := GenerateSelfSigned(certPath, keyPath, 1, nil, []string{"feed.example.com"}); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}

	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}

	pemBytes, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		t.Fatal("no PEM block in cert file")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Errorf("cert should cover localhost: %v", err)
	}
	if err := cert.VerifyHostname("feed.example.com"); err != nil {
		t.Errorf("cert should cover additional DNS name: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key permissions = %o, want 600", perm)
	}
}

func TestEnsureCertificatesGeneratesOnce(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "netmon.crt")
	keyPath := filepath.Join(dir, "netmon.key")

	gotCert, gotKey, err := EnsureCertificates(certPath, keyPath)
	if err != nil {
		t.Fatalf("EnsureCertificates: %v", err)
	}
	if gotCert != certPath || gotKey != keyPath {
		t.Errorf("paths = %q, %q", gotCert, gotKey)
	}

	first, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}

	// A second call must reuse the existing pair.
	if _, _, err := EnsureCertificates(certPath, keyPath); err != nil {
		t.Fatalf("EnsureCertificates (second): %v", err)
	}
	second, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("existing certificate was regenerated")
	}
}

func TestEnsureCertificatesRegeneratesIncompletePair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "netmon.crt")
	keyPath := filepath.Join(dir, "netmon.key")

	if err := os.WriteFile(certPath, []byte("orphan"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := EnsureCertificates(certPath, keyPath); err != nil {
		t.Fatalf("EnsureCertificates: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		t.Fatalf("regenerated pair does not load: %v", err)
	}
}
