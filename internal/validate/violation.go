package validate

import "fmt"

// Kind classifies a violation.
type Kind string

const (
	KindForbiddenImport    Kind = "forbidden_import"
	KindForbiddenBuiltin   Kind = "forbidden_builtin"
	KindForbiddenAttribute Kind = "forbidden_attribute"
	KindSyntaxError        Kind = "syntax_error"
)

// Violation is one reason a script was rejected.
type Violation struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (v Violation) String() string {
	switch {
	case v.Kind == KindSyntaxError && v.Column > 0:
		return fmt.Sprintf("Syntax error: %s (line %d, column %d)", v.Message, v.Line, v.Column)
	case v.Kind == KindSyntaxError && v.Line > 0:
		return fmt.Sprintf("Syntax error: %s (line %d)", v.Message, v.Line)
	case v.Kind == KindSyntaxError:
		return "Syntax error: " + v.Message
	case v.Line > 0:
		return fmt.Sprintf("line %d: %s", v.Line, v.Message)
	default:
		return v.Message
	}
}

// Result is the outcome of validating one script.
type Result struct {
	Valid      bool        `json:"valid"`
	Errors     []string    `json:"errors"`
	Warnings   []string    `json:"warnings"`
	Violations []Violation `json:"violations,omitempty"`
}

// HasKind reports whether any violation is of kind k.
func (r Result) HasKind(k Kind) bool {
	for _, v := range r.Violations {
		if v.Kind == k {
			return true
		}
	}
	return false
}
