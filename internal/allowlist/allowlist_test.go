package allowlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAllowsUtilityModules(t *testing.T) {
	a := NewDefault()
	for _, m := range []string{"json", "math", "string", "table", "re", "time", "random"} {
		if !a.ModuleAllowed(m) {
			t.Errorf("expected module %q to be allowed", m)
		}
	}
}

func TestDefaultForbidsProcessModules(t *testing.T) {
	a := NewDefault()
	for _, m := range []string{"os", "io", "debug", "package"} {
		if a.ModuleAllowed(m) {
			t.Errorf("module %q must not be allowed", m)
		}
		if !a.ModuleForbidden(m) {
			t.Errorf("expected module %q to be forbidden", m)
		}
	}
}

func TestDefaultForbidsDynamicCode(t *testing.T) {
	a := NewDefault()
	for _, name := range []string{"load", "loadstring", "dofile", "setmetatable", "_G"} {
		if !a.BuiltinForbidden(name) {
			t.Errorf("expected builtin %q to be forbidden", name)
		}
		if a.BuiltinAllowed(name) {
			t.Errorf("builtin %q must not be allowed", name)
		}
	}
}

func TestAttributeForbidden(t *testing.T) {
	a := NewDefault()
	tests := []struct {
		name    string
		blocked bool
	}{
		{"__index", true},
		{"__gc", true},
		{"__anything", true},
		{"dump", true},
		{"upper", false},
		{"name", false},
		{"_private", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := a.AttributeForbidden(tt.name)
			if got != tt.blocked {
				t.Errorf("AttributeForbidden(%q) = %v, want %v", tt.name, got, tt.blocked)
			}
		})
	}
}

func TestNewRejectsConflicts(t *testing.T) {
	_, err := New(Patterns{
		Builtins:          []string{"print", "load"},
		ForbiddenBuiltins: []string{"load"},
	})
	if err == nil {
		t.Fatal("expected error for name both allowed and forbidden")
	}

	_, err = New(Patterns{
		Modules:          []string{"os"},
		ForbiddenModules: []string{"os"},
	})
	if err == nil {
		t.Fatal("expected error for module both allowed and forbidden")
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Patterns{ForbiddenAttributes: []string{"[abc"}})
	if err == nil {
		t.Fatal("expected error for malformed glob")
	}
}

func TestNewNormalizes(t *testing.T) {
	a, err := New(Patterns{Modules: []string{" math", "json", "math", ""}})
	if err != nil {
		t.Fatal(err)
	}
	got := a.Modules()
	if len(got) != 2 || got[0] != "json" || got[1] != "math" {
		t.Errorf("expected [json math], got %v", got)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	a := NewDefault()
	mods := a.Modules()
	mods[0] = "os"
	if a.ModuleAllowed("os") {
		t.Error("mutating Modules() result must not change the allowlist")
	}

	p := a.Patterns()
	p.Builtins = append(p.Builtins, "load")
	if a.BuiltinAllowed("load") {
		t.Error("mutating Patterns() result must not change the allowlist")
	}
}

func TestHashStable(t *testing.T) {
	a := NewDefault()
	b := NewDefault()
	if a.Hash() != b.Hash() {
		t.Errorf("expected identical hashes, got %s and %s", a.Hash(), b.Hash())
	}
	if len(a.Hash()) != len("sha256:")+64 {
		t.Errorf("unexpected hash format: %s", a.Hash())
	}

	c, err := New(Patterns{Modules: []string{"json"}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Hash() == a.Hash() {
		t.Error("different patterns must hash differently")
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Hash() != NewDefault().Hash() {
		t.Error("expected default allowlist when file is missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	content := `modules: [json]
builtins: [print, pairs]
forbidden_builtins: [load]
forbidden_attributes: ["__*"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if !a.ModuleAllowed("json") || a.ModuleAllowed("math") {
		t.Errorf("unexpected modules: %v", a.Modules())
	}
	if !a.BuiltinAllowed("pairs") {
		t.Error("expected pairs allowed")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	if err := os.WriteFile(path, []byte("modules: [json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStandardProfileMatchesDefault(t *testing.T) {
	a, err := Profile("standard")
	if err != nil {
		t.Fatalf("failed to load standard profile: %v", err)
	}
	if a.Hash() != NewDefault().Hash() {
		t.Error("standard profile must match the default patterns")
	}
}

func TestStrictProfile(t *testing.T) {
	a, err := Profile("strict")
	if err != nil {
		t.Fatalf("failed to load strict profile: %v", err)
	}
	if a.BuiltinAllowed("require") {
		t.Error("strict profile must not allow require")
	}
	if !a.BuiltinForbidden("require") {
		t.Error("strict profile must forbid require")
	}
	if a.ModuleAllowed("time") || a.ModuleAllowed("random") {
		t.Error("strict profile must not allow time or random")
	}
}

func TestProfileUnknown(t *testing.T) {
	if _, err := Profile("no-such-profile"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProfileNames(t *testing.T) {
	names := ProfileNames()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["standard"] || !found["strict"] {
		t.Errorf("expected built-in profiles in list, got %v", names)
	}
}
