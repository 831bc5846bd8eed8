package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAppliesDefaultsThenOverlay(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Parse([]byte(`
direction: remote-originated
listenAddress: ":9443"
databaseKind: File
databaseConnection: /var/lib/implink/profiles
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Direction != DirectionRemoteOriginated {
		t.Fatalf("expected overlay to set direction, got %q", cfg.Direction)
	}
	if cfg.ListenAddress != ":9443" {
		t.Fatalf("expected overlay to set listenAddress, got %q", cfg.ListenAddress)
	}
	if cfg.ResponseTimeout != 10*time.Second {
		t.Fatalf("expected default responseTimeout to survive, got %v", cfg.ResponseTimeout)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("IMPLINK_PROFILE_DIR", "/etc/implink/profiles")

	l := NewLoader()
	cfg, err := l.Parse([]byte(`
direction: remote-terminated
listenAddress: ":8443"
databaseKind: File
databaseConnection: "${IMPLINK_PROFILE_DIR}"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseConnection != "/etc/implink/profiles" {
		t.Fatalf("expected env var expansion, got %q", cfg.DatabaseConnection)
	}
}

func TestParseRejectsInvalidDirection(t *testing.T) {
	l := NewLoader()
	if _, err := l.Parse([]byte(`direction: sideways
listenAddress: ":8443"
databaseKind: None
`)); err == nil {
		t.Fatal("expected an error for an invalid direction")
	}
}

func TestParseRequiresDatabaseConnectionForFileBackend(t *testing.T) {
	l := NewLoader()
	if _, err := l.Parse([]byte(`direction: remote-terminated
listenAddress: ":8443"
databaseKind: File
`)); err == nil {
		t.Fatal("expected an error when databaseKind is File with no databaseConnection")
	}
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "implink.yaml")
	if err := os.WriteFile(path, []byte(`direction: remote-terminated
listenAddress: ":8443"
databaseKind: None
`), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	cfg, err := l.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseKind != "None" {
		t.Fatalf("expected databaseKind None, got %q", cfg.DatabaseKind)
	}
}
