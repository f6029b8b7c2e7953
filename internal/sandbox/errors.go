package sandbox

import (
	"errors"
	"strings"

	"github.com/ppiankov/scriptguard/internal/validate"
)

var (
	// ErrSecurity matches every *SecurityError.
	ErrSecurity = errors.New("script rejected by security validation")
	// ErrConfiguration reports an unusable Config or seed.
	ErrConfiguration = errors.New("invalid sandbox configuration")
)

// SecurityError is returned by Execute when validation fails.
// Nothing from the script has run.
type SecurityError struct {
	Violations []validate.Violation
}

func (e *SecurityError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return "security violation: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrSecurity) hold.
func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurity
}

// Kinds returns the distinct violation kinds in order of first appearance.
func (e *SecurityError) Kinds() []validate.Kind {
	seen := make(map[validate.Kind]bool)
	var kinds []validate.Kind
	for _, v := range e.Violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}
