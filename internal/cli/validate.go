package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/host"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/validate"
)

var validateFormat string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format (text|json)")
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check scripts against the allow-list without running them",
	Long: "Reports every forbidden import, builtin and attribute in one pass.\n" +
		"Markdown documents are checked block by block.\n\n" +
		"Exit code 0 if every file is valid, 77 otherwise.",
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	al, err := loadAllowList()
	if err != nil {
		return &exitError{code: exitConfig, msg: fmt.Sprintf("load allowlist: %v", err)}
	}
	interp, err := sandbox.New(sandbox.Config{AllowList: al, Bridge: bridge.New(nil), Logger: logger})
	if err != nil {
		return &exitError{code: exitConfig, msg: err.Error()}
	}
	h, err := host.New(host.Config{Interpreter: interp})
	if err != nil {
		return err
	}

	results := make(map[string]validate.Result, len(args))
	valid := true
	for _, path := range args {
		r, err := validateFile(interp, h, path)
		if err != nil {
			return err
		}
		results[path] = r
		valid = valid && r.Valid
	}

	if validateFormat == "json" {
		printJSON(results)
	} else {
		for _, path := range args {
			r := results[path]
			if r.Valid {
				fmt.Printf("OK      %s\n", path)
			} else {
				fmt.Printf("INVALID %s\n", path)
			}
			for _, e := range r.Errors {
				fmt.Printf("  %s\n", e)
			}
			for _, w := range r.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}
	}

	if !valid {
		return &exitError{code: exitBlocked}
	}
	return nil
}

func validateFile(interp *sandbox.Interpreter, h *host.Host, path string) (validate.Result, error) {
	if strings.EqualFold(filepath.Ext(path), document.Ext) {
		doc, err := document.Load(path)
		if err != nil {
			return validate.Result{}, err
		}
		return h.Validate(doc), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return validate.Result{}, fmt.Errorf("read script: %w", err)
	}
	return interp.ValidateOnly(string(src)), nil
}
