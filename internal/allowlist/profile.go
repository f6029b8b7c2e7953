package allowlist

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed profiles/standard.yaml
var standardYAML []byte

//go:embed profiles/strict.yaml
var strictYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"standard": standardYAML,
	"strict":   strictYAML,
}

// Profile loads a named allowlist. Checks built-in profiles first,
// then falls back to ~/.scriptguard/profiles/<name>.yaml.
func Profile(name string) (*AllowList, error) {
	if data, ok := builtinProfiles[name]; ok {
		a, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in profile %q: %w", name, err)
		}
		return a, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("profile %q not found (no built-in, cannot determine home dir)", name)
	}

	data, err := os.ReadFile(filepath.Join(home, ".scriptguard", "profiles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}

	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	return a, nil
}

// ProfileNames returns sorted names of all available profiles (built-in + user).
func ProfileNames() []string {
	seen := make(map[string]bool)
	for name := range builtinProfiles {
		seen[name] = true
	}

	if home, err := os.UserHomeDir(); err == nil {
		entries, err := os.ReadDir(filepath.Join(home, ".scriptguard", "profiles"))
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
					seen[name[:len(name)-len(ext)]] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
