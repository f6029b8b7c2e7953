package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirs(t *testing.T) {
	cfg := DefaultDirConfig(t.TempDir())

	if err := EnsureDirs(cfg); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	for _, dir := range []string{cfg.Inbox, cfg.Outbox, cfg.ProcessingDir(), cfg.FailedDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestEnsureDirsIdempotent(t *testing.T) {
	cfg := DefaultDirConfig(t.TempDir())

	if err := EnsureDirs(cfg); err != nil {
		t.Fatalf("first EnsureDirs: %v", err)
	}
	if err := EnsureDirs(cfg); err != nil {
		t.Fatalf("second EnsureDirs should be idempotent: %v", err)
	}
}

func TestDirConfigSubdirectories(t *testing.T) {
	cfg := DefaultDirConfig("/srv/scriptguard")

	if cfg.Inbox != "/srv/scriptguard/inbox" || cfg.Outbox != "/srv/scriptguard/outbox" {
		t.Errorf("unexpected layout %+v", cfg)
	}
	if got := cfg.ProcessingDir(); got != "/srv/scriptguard/state/processing" {
		t.Errorf("ProcessingDir = %q", got)
	}
	if got := cfg.FailedDir(); got != "/srv/scriptguard/state/failed" {
		t.Errorf("FailedDir = %q", got)
	}
}

func TestValidateSameFilesystem(t *testing.T) {
	cfg := DefaultDirConfig(t.TempDir())
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}
	if err := ValidateSameFilesystem(cfg); err != nil {
		t.Errorf("same tempdir should be same filesystem: %v", err)
	}
}

func TestValidateSameFilesystemMissingDir(t *testing.T) {
	cfg := DefaultDirConfig(filepath.Join(t.TempDir(), "missing"))
	if err := ValidateSameFilesystem(cfg); err == nil {
		t.Error("expected error for missing directories")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.md")
	dst := filepath.Join(dir, "b.md")
	if err := os.WriteFile(src, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := moveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected destination %q, %v", data, err)
	}
}
