package allowlist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw names and patterns organized by category.
type Patterns struct {
	Modules             []string `yaml:"modules"`
	Builtins            []string `yaml:"builtins"`
	ForbiddenBuiltins   []string `yaml:"forbidden_builtins"`
	ForbiddenModules    []string `yaml:"forbidden_modules"`
	ForbiddenAttributes []string `yaml:"forbidden_attributes"`
}

// AllowList is the immutable set of names a script may reach.
// Anything it does not name is implicitly forbidden.
type AllowList struct {
	modules           map[string]bool
	builtins          map[string]bool
	forbiddenBuiltins map[string]bool
	forbiddenModules  map[string]bool
	attrPatterns      []string // path.Match globs
	raw               Patterns
	hash              string
}

// New builds an AllowList from raw patterns. Names are trimmed, deduplicated
// and sorted. A name that is both permitted and forbidden is an error.
func New(p Patterns) (*AllowList, error) {
	raw := Patterns{
		Modules:             normalize(p.Modules),
		Builtins:            normalize(p.Builtins),
		ForbiddenBuiltins:   normalize(p.ForbiddenBuiltins),
		ForbiddenModules:    normalize(p.ForbiddenModules),
		ForbiddenAttributes: normalize(p.ForbiddenAttributes),
	}

	a := &AllowList{
		modules:           toSet(raw.Modules),
		builtins:          toSet(raw.Builtins),
		forbiddenBuiltins: toSet(raw.ForbiddenBuiltins),
		forbiddenModules:  toSet(raw.ForbiddenModules),
		attrPatterns:      raw.ForbiddenAttributes,
		raw:               raw,
	}

	for _, name := range raw.Builtins {
		if a.forbiddenBuiltins[name] || a.forbiddenModules[name] {
			return nil, fmt.Errorf("builtin %q is both allowed and forbidden", name)
		}
	}
	for _, name := range raw.Modules {
		if a.forbiddenModules[name] || a.forbiddenBuiltins[name] {
			return nil, fmt.Errorf("module %q is both allowed and forbidden", name)
		}
	}
	for _, pattern := range raw.ForbiddenAttributes {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("forbidden_attributes: invalid pattern %q: %w", pattern, err)
		}
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("hash allowlist: %w", err)
	}
	h := sha256.Sum256(data)
	a.hash = "sha256:" + hex.EncodeToString(h[:])

	return a, nil
}

// NewDefault creates an AllowList with the built-in default patterns.
func NewDefault() *AllowList {
	a, err := New(DefaultPatterns)
	if err != nil {
		panic("allowlist: invalid default patterns: " + err.Error())
	}
	return a
}

// Load reads an allowlist from a YAML file. Falls back to defaults if the
// file doesn't exist. An empty path means ~/.scriptguard/allowlist.yaml.
func Load(path string) (*AllowList, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".scriptguard", "allowlist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse builds an AllowList from YAML.
func Parse(data []byte) (*AllowList, error) {
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse allowlist: %w", err)
	}
	return New(p)
}

// ModuleAllowed reports whether a script may import the named module.
func (a *AllowList) ModuleAllowed(name string) bool {
	return a.modules[name]
}

// ModuleForbidden reports whether name is a module that may never be reached.
func (a *AllowList) ModuleForbidden(name string) bool {
	return a.forbiddenModules[name]
}

// BuiltinAllowed reports whether name is a permitted global.
func (a *AllowList) BuiltinAllowed(name string) bool {
	return a.builtins[name]
}

// BuiltinForbidden reports whether name is unconditionally rejected.
func (a *AllowList) BuiltinForbidden(name string) bool {
	return a.forbiddenBuiltins[name]
}

// AttributeForbidden reports whether an attribute or method name matches
// one of the forbidden attribute patterns. Returns the matching pattern.
func (a *AllowList) AttributeForbidden(name string) (bool, string) {
	for _, pattern := range a.attrPatterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true, pattern
		}
	}
	return false, ""
}

// Modules returns the sorted permitted module names.
func (a *AllowList) Modules() []string {
	return append([]string(nil), a.raw.Modules...)
}

// Builtins returns the sorted permitted builtin names.
func (a *AllowList) Builtins() []string {
	return append([]string(nil), a.raw.Builtins...)
}

// Patterns returns a copy of the normalized patterns.
func (a *AllowList) Patterns() Patterns {
	return Patterns{
		Modules:             append([]string(nil), a.raw.Modules...),
		Builtins:            append([]string(nil), a.raw.Builtins...),
		ForbiddenBuiltins:   append([]string(nil), a.raw.ForbiddenBuiltins...),
		ForbiddenModules:    append([]string(nil), a.raw.ForbiddenModules...),
		ForbiddenAttributes: append([]string(nil), a.raw.ForbiddenAttributes...),
	}
}

// Hash returns the SHA-256 of the normalized patterns, prefixed "sha256:".
func (a *AllowList) Hash() string {
	return a.hash
}

// ToYAML serializes the normalized patterns.
func (a *AllowList) ToYAML() ([]byte, error) {
	return yaml.Marshal(a.raw)
}

func normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
