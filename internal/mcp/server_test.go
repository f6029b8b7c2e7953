package mcp

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/validate"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	in, err := sandbox.New(sandbox.Config{AllowList: allowlist.NewDefault()})
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}
	s, err := New(Config{Interpreter: in})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	return s
}

func TestNewRequiresInterpreter(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, sandbox.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidateTool(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{
		Script: "local f = io.open('x')\nlocal g = loadstring('y')",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Valid {
		t.Fatal("expected invalid")
	}
	if len(out.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %+v", out.Violations)
	}
	if out.Violations[0].Kind != validate.KindForbiddenImport || out.Violations[1].Kind != validate.KindForbiddenBuiltin {
		t.Fatalf("unexpected kinds %+v", out.Violations)
	}

	_, ok, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{Script: "print(1)"})
	if err != nil || !ok.Valid {
		t.Fatalf("expected valid, got %+v, %v", ok, err)
	}
}

func TestExecuteTool(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleExecute(context.Background(), &mcpsdk.CallToolRequest{}, ExecuteInput{
		Script:  "total = base * 2\nprint(total)\nFILE.SAVE{path = 'a.md'}",
		Globals: map[string]any{"base": 21},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got %+v", out)
	}
	if !reflect.DeepEqual(out.Output, []string{"42"}) {
		t.Errorf("output = %q", out.Output)
	}
	if out.Bindings["total"] != int64(42) {
		t.Errorf("bindings = %v", out.Bindings)
	}
	if len(out.Commands) != 1 || out.Commands[0].Command != "FILE.SAVE" {
		t.Errorf("commands = %+v", out.Commands)
	}
	if !strings.HasPrefix(out.RunID, "r-") {
		t.Errorf("run id = %q", out.RunID)
	}
}

func TestExecuteToolBlocked(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleExecute(context.Background(), &mcpsdk.CallToolRequest{}, ExecuteInput{
		Script: "os.execute('rm -rf /')",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for blocked script")
	}
	if !out.Blocked || out.ErrorKind != "security" || len(out.Violations) == 0 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestExecuteToolRuntimeError(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleExecute(context.Background(), &mcpsdk.CallToolRequest{}, ExecuteInput{
		Script: "print('before')\nerror('boom')",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for failed script")
	}
	if out.Success || out.ErrorKind != "runtime" || !strings.Contains(out.Error, "boom") {
		t.Fatalf("unexpected output %+v", out)
	}
	if !reflect.DeepEqual(out.Output, []string{"before"}) {
		t.Errorf("partial output = %q", out.Output)
	}
}

func TestExecuteToolBadGlobal(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleExecute(context.Background(), &mcpsdk.CallToolRequest{}, ExecuteInput{
		Script:  "print(1)",
		Globals: map[string]any{"os": "shadow"},
	})
	if !errors.Is(err, sandbox.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCommandsTool(t *testing.T) {
	s := newTestServer(t)

	_, all, err := s.handleCommands(context.Background(), &mcpsdk.CallToolRequest{}, CommandsInput{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all.Namespaces, []string{"FILE", "MESH", "PROMPT", "STATE", "LOG"}) {
		t.Errorf("namespaces = %v", all.Namespaces)
	}
	if !strings.HasPrefix(all.Help, "Command reference:") {
		t.Errorf("help = %q", all.Help)
	}

	_, file, err := s.handleCommands(context.Background(), &mcpsdk.CallToolRequest{}, CommandsInput{Namespace: "FILE"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(file.Help, "FILE commands:") {
		t.Errorf("help = %q", file.Help)
	}

	if _, _, err := s.handleCommands(context.Background(), &mcpsdk.CallToolRequest{}, CommandsInput{Namespace: "NOPE"}); err == nil {
		t.Error("expected error for unknown namespace")
	}
}
