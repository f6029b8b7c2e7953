package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/scriptguard/internal/allowlist"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name: "basics",
		Cases: []Case{
			{Name: "arithmetic", Script: "x = 1 + 2\nprint(x)", Expect: "allow"},
			{Name: "io", Script: "io.open('/etc/passwd')", Expect: "forbidden_import"},
			{Name: "load", Script: "load('return 1')()", Expect: "forbidden_builtin"},
			{Name: "metatable key", Script: "local t = {}\nprint(t.__index)", Expect: "forbidden_attribute"},
			{Name: "broken", Script: "x = = 1", Expect: "syntax_error"},
			{Name: "any rejection", Script: "os.exit(0)", Expect: "DENY"},
		},
	}

	result, err := Run(s, allowlist.NewDefault())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %d; cases: %+v", result.Failed, result.Cases)
	}
	if result.Passed != 6 || result.Total != 6 {
		t.Errorf("expected 6/6 passed, got %d/%d", result.Passed, result.Total)
	}
}

func TestFailedAssertionDetected(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			{Script: "print('hello')", Expect: "forbidden_import"},
			{Script: "require('os')", Expect: "allow"},
		},
	}

	result, err := Run(s, allowlist.NewDefault())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 2 {
		t.Errorf("expected 2 failures, got %d", result.Failed)
	}
	if got := result.Cases[0].Actual; got != "allow" {
		t.Errorf("actual: got %s", got)
	}
	if got := result.Cases[1].Actual; got != "forbidden_import" {
		t.Errorf("actual: got %s", got)
	}
}

func TestScenarioProfileOverridesAllowList(t *testing.T) {
	s := &Scenario{
		Name:    "strict",
		Profile: "strict",
		Cases: []Case{
			{Script: "local json = require('json')", Expect: "forbidden_builtin"},
			{Script: "print(math.floor(1.5))", Expect: "allow"},
		},
	}

	result, err := Run(s, allowlist.NewDefault())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
}

func TestUnknownProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Run(&Scenario{Name: "x", Profile: "no-such-profile"}, allowlist.NewDefault())
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLoadAndRunFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "test.yaml", `
name: "file test"
cases:
  - name: loop
    script: |
      for i = 1, 3 do print(i) end
    expect: allow
  - name: debug
    script: debug.traceback()
    expect: forbidden_import
`)

	result, err := LoadAndRun(path, allowlist.NewDefault())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
	if result.File != path {
		t.Errorf("expected file path set, got %q", result.File)
	}
}

func TestInvalidScenarioYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bad.yaml", ":::not yaml\x00")

	if _, err := LoadAndRun(path, allowlist.NewDefault()); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEmptyCasesList(t *testing.T) {
	result, err := Run(&Scenario{Name: "empty"}, allowlist.NewDefault())
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || result.Failed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "good", Total: 1, Passed: 1, Cases: []CaseResult{{Index: 1, Passed: true}}},
		{Name: "bad", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Passed: true},
			{Index: 2, Name: "io", Expected: "allow", Actual: "forbidden_import"},
		}},
	}
	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files...",
		"PASS  good (1/1)",
		"FAIL  bad (1/2)",
		"expected allow, got forbidden_import",
		"2 of 3 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	js, err := FormatJSON(results)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js, `"actual": "forbidden_import"`) {
		t.Errorf("unexpected json: %s", js)
	}
}
