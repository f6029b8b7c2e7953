package validate

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/bridge"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return New(allowlist.NewDefault(), WithCatalog(bridge.DefaultCatalog()))
}

func TestValidScript(t *testing.T) {
	v := newValidator(t)
	res := v.Validate("x = 10\ny = 20\nresult = x + y\nprint(result)")
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
	if len(res.Errors) != 0 || len(res.Violations) != 0 {
		t.Errorf("expected no errors, got %v", res.Errors)
	}
}

func TestAllowedScripts(t *testing.T) {
	v := newValidator(t)
	scripts := map[string]string{
		"json require":   `local json = require("json"); print(json.encode({a = 1}))`,
		"require string": `local m = require "math"; print(m.floor(1.5))`,
		"method call":    `local s = "abc"; print(s:upper())`,
		"bridge":         `FILE.NEW{name = "x.txt"}`,
		"pcall":          `local ok, err = pcall(error, "boom")`,
		"closures":       `local function add(a, b) return a + b end; print(add(1, 2))`,
		"loops":          `for i = 1, 3 do print(i) end; for k, v in pairs({a = 1}) do print(k, v) end`,
		"goto":           "for i = 1, 3 do\n  if i == 2 then goto continue end\n  print(i)\n  ::continue::\nend",
		"table methods":  `local t = {}; function t:greet() return "hi" end; print(t:greet())`,
		"repeat":         `local n = 0; repeat n = n + 1 until n > 2`,
		"varargs":        `local function f(...) return select("#", ...) end; print(f(1, 2))`,
	}
	for name, src := range scripts {
		t.Run(name, func(t *testing.T) {
			res := v.Validate(src)
			if !res.Valid {
				t.Errorf("expected valid, got %v", res.Errors)
			}
		})
	}
}

func TestViolations(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name string
		src  string
		kind Kind
	}{
		{"require os", `local os = require("os")`, KindForbiddenImport},
		{"require io", `require "io"`, KindForbiddenImport},
		{"require unknown", `require("socket")`, KindForbiddenImport},
		{"require dotted", `require("os.path")`, KindForbiddenImport},
		{"dynamic require", `local m = "os"; require(m)`, KindForbiddenImport},
		{"os reference", `os.execute("ls")`, KindForbiddenImport},
		{"io reference", `local f = io.open("/etc/passwd")`, KindForbiddenImport},
		{"debug reference", `debug.getinfo(1)`, KindForbiddenImport},
		{"load", `load("return 1")()`, KindForbiddenBuiltin},
		{"loadstring", `loadstring("x = 1")()`, KindForbiddenBuiltin},
		{"dofile", `dofile("/tmp/x.lua")`, KindForbiddenBuiltin},
		{"setmetatable", `setmetatable({}, {})`, KindForbiddenBuiltin},
		{"getmetatable passed", `local g = getmetatable`, KindForbiddenBuiltin},
		{"_G", `_G.print("x")`, KindForbiddenBuiltin},
		{"rawget", `rawget({}, "x")`, KindForbiddenBuiltin},
		{"dunder attribute", `local t = {}; print(t.__index)`, KindForbiddenAttribute},
		{"dunder index string", `local t = {}; print(t["__gc"])`, KindForbiddenAttribute},
		{"dunder concat", `local t = {}; print(t["__" .. "index"])`, KindForbiddenAttribute},
		{"dunder field", `local mt = {__index = function() end}`, KindForbiddenAttribute},
		{"dunder method", `local t = {}; t:__call()`, KindForbiddenAttribute},
		{"dunder def", `local t = {}; function t:__tostring() end`, KindForbiddenAttribute},
		{"string dump", `print(string.dump(print))`, KindForbiddenAttribute},
		{"syntax", `x = = 1`, KindSyntaxError},
		{"unclosed", "if true then\nprint(1)", KindSyntaxError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.src)
			if res.Valid {
				t.Fatalf("expected %s to be rejected", tt.src)
			}
			if !res.HasKind(tt.kind) {
				t.Errorf("expected violation kind %s, got %+v", tt.kind, res.Violations)
			}
			if len(res.Errors) != len(res.Violations) {
				t.Errorf("errors and violations out of step: %v vs %v", res.Errors, res.Violations)
			}
		})
	}
}

func TestAllViolationsReported(t *testing.T) {
	v := newValidator(t)
	src := `local f = require("os")
load("x = 1")
local t = {}
print(t.__index)
`
	res := v.Validate(src)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	for _, k := range []Kind{KindForbiddenImport, KindForbiddenBuiltin, KindForbiddenAttribute} {
		if !res.HasKind(k) {
			t.Errorf("expected a %s violation in %+v", k, res.Violations)
		}
	}
	if len(res.Violations) != 3 {
		t.Errorf("expected 3 violations, got %d: %v", len(res.Violations), res.Errors)
	}
}

func TestViolationLines(t *testing.T) {
	v := newValidator(t)
	res := v.Validate("x = 1\ny = 2\nload('z')")
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", res.Errors)
	}
	if res.Violations[0].Line != 3 {
		t.Errorf("expected line 3, got %d", res.Violations[0].Line)
	}
	if !strings.HasPrefix(res.Errors[0], "line 3:") {
		t.Errorf("unexpected rendering %q", res.Errors[0])
	}
}

func TestSyntaxErrorRendering(t *testing.T) {
	v := newValidator(t)
	res := v.Validate("x = = 1")
	if len(res.Errors) != 1 {
		t.Fatalf("expected single syntax error, got %v", res.Errors)
	}
	if !strings.HasPrefix(res.Errors[0], "Syntax error:") {
		t.Errorf("unexpected rendering %q", res.Errors[0])
	}
	if res.Violations[0].Line != 1 {
		t.Errorf("expected line 1, got %d", res.Violations[0].Line)
	}
}

func TestValidateIdempotent(t *testing.T) {
	v := newValidator(t)
	for _, src := range []string{
		"print(1)",
		`require("os"); load("x")`,
		"x = = 1",
		`FILE.EXPLODE{}`,
	} {
		first := v.Validate(src)
		second := v.Validate(src)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("validation of %q not idempotent:\n%+v\n%+v", src, first, second)
		}
	}
}

func TestUnknownCommandWarning(t *testing.T) {
	v := newValidator(t)
	res := v.Validate(`FILE.EXPLODE{name = "x"}; MESH:SHOUT{}; FILE.NEW{name = "ok"}`)
	if !res.Valid {
		t.Fatalf("warnings must not invalidate: %v", res.Errors)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
	if !strings.Contains(res.Warnings[0], "FILE.EXPLODE") || !strings.Contains(res.Warnings[1], "MESH.SHOUT") {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
}

func TestNoCatalogNoWarnings(t *testing.T) {
	v := New(allowlist.NewDefault())
	res := v.Validate(`FILE.EXPLODE{}`)
	if !res.Valid || len(res.Warnings) != 0 {
		t.Errorf("expected no warnings without catalog, got %+v", res)
	}
}

func TestStrictProfileRejectsRequire(t *testing.T) {
	al, err := allowlist.Profile("strict")
	if err != nil {
		t.Fatal(err)
	}
	v := New(al)

	res := v.Validate(`local json = require("json")`)
	if res.Valid || !res.HasKind(KindForbiddenImport) {
		t.Errorf("expected forbidden_import under strict profile, got %+v", res)
	}

	res = v.Validate(`print(json.encode({1, 2}))`)
	if !res.Valid {
		t.Errorf("predeclared json must stay usable under strict profile: %v", res.Errors)
	}
}

func TestAlternateAllowlist(t *testing.T) {
	al, err := allowlist.New(allowlist.Patterns{
		Modules:  []string{"json"},
		Builtins: []string{"print", "require"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := New(al)

	if res := v.Validate(`require("math")`); res.Valid {
		t.Error("math must be rejected when not allow-listed")
	}
	if res := v.Validate(`require("json")`); !res.Valid {
		t.Errorf("json must be accepted: %v", res.Errors)
	}
}

func TestAnalyzeReturnsProto(t *testing.T) {
	v := newValidator(t)
	res, proto := v.Analyze("print(1)")
	if !res.Valid || proto == nil {
		t.Fatalf("expected compiled proto, got %+v", res)
	}
	if _, proto := v.Analyze("x = = 1"); proto != nil {
		t.Error("expected nil proto for syntax error")
	}
}
