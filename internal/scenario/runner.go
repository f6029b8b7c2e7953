package scenario

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/validate"
)

// Run validates every case in s against al. Nothing is executed.
func Run(s *Scenario, al *allowlist.AllowList) (*RunResult, error) {
	if s.Profile != "" {
		p, err := allowlist.Profile(s.Profile)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		al = p
	}
	v := validate.New(al)

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		r := v.Validate(c.Script)
		expected := strings.ToLower(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:    i + 1,
			Name:     c.Name,
			Expected: expected,
			Actual:   verdict(r),
			Errors:   r.Errors,
		}
		if matches(expected, r) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result, nil
}

// verdict is "allow" or the distinct violation kinds joined by ",".
func verdict(r validate.Result) string {
	if r.Valid {
		return ExpectAllow
	}
	var kinds []string
	for _, v := range r.Violations {
		if !slices.Contains(kinds, string(v.Kind)) {
			kinds = append(kinds, string(v.Kind))
		}
	}
	return strings.Join(kinds, ",")
}

func matches(expected string, r validate.Result) bool {
	switch expected {
	case ExpectAllow:
		return r.Valid
	case ExpectDeny:
		return !r.Valid
	}
	return r.HasKind(validate.Kind(expected))
}

// LoadAndRun loads a scenario YAML file and runs it against al.
func LoadAndRun(path string, al *allowlist.AllowList) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	result, err := Run(&s, al)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}
