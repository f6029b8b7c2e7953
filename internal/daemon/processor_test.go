package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/host"
	"github.com/ppiankov/scriptguard/internal/sandbox"
)

const counterDoc = "---\n" +
	"permissions: [execute]\n" +
	"---\n" +
	"```lua\n" +
	"local n = STATE.GET(\"runs\", 0)\n" +
	"STATE.SET(\"runs\", n + 1)\n" +
	"print(\"runs\", n + 1)\n" +
	"```\n"

func setupProcessorDirs(t *testing.T) DirConfig {
	t.Helper()
	cfg := DefaultDirConfig(t.TempDir())
	if err := EnsureDirs(cfg); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return cfg
}

func newTestHost(t *testing.T) *host.Host {
	t.Helper()
	in, err := sandbox.New(sandbox.Config{AllowList: allowlist.NewDefault()})
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}
	h, err := host.New(host.Config{Interpreter: in})
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	return h
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func readResult(t *testing.T, dirs DirConfig, id string) Result {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dirs.Outbox, id+".json"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return r
}

func TestProcessorRunsDocument(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	path := writeDoc(t, dirs.Inbox, "counter.md", counterDoc)

	if err := p.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	r := readResult(t, dirs, "counter")
	if r.Status != ResultDone {
		t.Fatalf("status = %q, error %q", r.Status, r.Error)
	}
	if r.Run == nil || len(r.Run.Scripts) != 1 || r.Run.Scripts[0].Output[0] != "runs 1" {
		t.Fatalf("unexpected run %+v", r.Run)
	}

	rendered, err := os.ReadFile(filepath.Join(dirs.Outbox, "counter.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(rendered), "```state") || !strings.Contains(string(rendered), `"runs": 1`) {
		t.Errorf("rendered document missing state block:\n%s", rendered)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("inbox document should be consumed")
	}
	if _, err := os.Stat(filepath.Join(dirs.ProcessingDir(), "counter.md")); !os.IsNotExist(err) {
		t.Error("processing file should be removed")
	}
}

func TestProcessorDeniedDocument(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	path := writeDoc(t, dirs.Inbox, "nope.md", "```lua\nprint(1)\n```\n")

	if err := p.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	r := readResult(t, dirs, "nope")
	if r.Status != ResultDenied {
		t.Fatalf("status = %q", r.Status)
	}
	if _, err := os.Stat(filepath.Join(dirs.Outbox, "nope.md")); !os.IsNotExist(err) {
		t.Error("denied document should not be rendered")
	}
}

func TestProcessorBlockedDocument(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	path := writeDoc(t, dirs.Inbox, "evil.md", "---\npermissions: [execute]\n---\n```lua\nos.execute(\"rm -rf /\")\n```\n")

	if err := p.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	r := readResult(t, dirs, "evil")
	if r.Status != ResultBlocked {
		t.Fatalf("status = %q", r.Status)
	}
	if len(r.Run.Scripts[0].Violations) == 0 {
		t.Error("expected violations in result")
	}
}

func TestProcessorUnparseableDocument(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	path := writeDoc(t, dirs.Inbox, "broken.md", "```lua\nprint(1)\n")

	if err := p.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	r := readResult(t, dirs, "broken")
	if r.Status != ResultFailed || r.Error == "" {
		t.Fatalf("unexpected result %+v", r)
	}
	if _, err := os.Stat(filepath.Join(dirs.FailedDir(), "broken.md")); err != nil {
		t.Error("unparseable document should be kept in failed dir")
	}
}

func TestProcessorInvalidName(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	path := writeDoc(t, dirs.Inbox, "bad name.md", counterDoc)

	if err := p.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dirs.Outbox)
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "unknown-") {
		t.Fatalf("expected one unknown-* result, got %v", entries)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid document should leave the inbox")
	}
}

func TestProcessorRejectsSymlink(t *testing.T) {
	dirs := setupProcessorDirs(t)
	p := NewProcessor(ProcessorConfig{Dirs: dirs, Host: newTestHost(t)})
	target := writeDoc(t, t.TempDir(), "target.md", counterDoc)
	link := filepath.Join(dirs.Inbox, "link.md")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := p.Process(context.Background(), link); err == nil {
		t.Fatal("expected symlink rejection")
	}
	if _, err := os.Stat(filepath.Join(dirs.Outbox, "link.json")); !os.IsNotExist(err) {
		t.Error("symlink must not produce a result")
	}
}
