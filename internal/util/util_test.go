package util

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCertificate(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "tls", "api.crt"), filepath.Join(dir, "tls", "api.key")

	created, err := EnsureCertificate(cert, key, []string{"127.0.0.1", "localhost"})
	if err != nil || !created {
		t.Fatalf("EnsureCertificate = %v, %v", created, err)
	}
	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	if len(pair.Certificate) != 1 {
		t.Errorf("chain length %d", len(pair.Certificate))
	}

	created, err = EnsureCertificate(cert, key, nil)
	if err != nil || created {
		t.Errorf("existing pair regenerated: %v, %v", created, err)
	}
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"acserver_2024-01-01.log",
		"acserver_2024-01-02.log",
		"acserver_2024-01-03.log",
		"other.log",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	if n := cleanOldLogs(dir, 2); n != 1 {
		t.Fatalf("removed %d files, want 1", n)
	}
	if FileExists(filepath.Join(dir, "acserver_2024-01-01.log")) {
		t.Error("oldest log kept")
	}
	if !FileExists(filepath.Join(dir, "other.log")) {
		t.Error("foreign file removed")
	}
}
