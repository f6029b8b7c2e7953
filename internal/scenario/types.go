package scenario

// Expectation values other than a violation kind.
const (
	ExpectAllow = "allow"
	ExpectDeny  = "deny" // any violation
)

// Case is one script and the verdict the allow-list must reach on it.
// Expect is "allow", "deny", or a violation kind such as
// "forbidden_import".
type Case struct {
	Name    string `yaml:"name,omitempty"`
	Script  string `yaml:"script"`
	Expect  string `yaml:"expect"`
	Purpose string `yaml:"purpose,omitempty"`
}

// Scenario is a named collection of allow-list test cases.
type Scenario struct {
	Name string `yaml:"name"`
	// Profile selects a named allow-list profile instead of the caller's.
	Profile string `yaml:"profile,omitempty"`
	Cases   []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int      `json:"index"`
	Name     string   `json:"name,omitempty"`
	Passed   bool     `json:"passed"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Errors   []string `json:"errors,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
