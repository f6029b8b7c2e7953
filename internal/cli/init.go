package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/allowlist"
)

var (
	initProfile string
	initMode    string
	initForce   bool
)

func init() {
	initCmd.Flags().StringVar(&initProfile, "profile", "", "Built-in profile to base the allowlist on (standard, strict)")
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.scriptguard) or system (/etc/scriptguard)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap scriptguard configuration",
	Long: `Creates the config directory, a default allowlist, and a profiles directory.

User mode (default):  writes to ~/.scriptguard/
System mode:          writes to /etc/scriptguard/ (requires root)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	profilesDir := filepath.Join(configDir, "profiles")
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}

	content, err := defaultAllowlistYAML(initProfile)
	if err != nil {
		return err
	}
	path := filepath.Join(configDir, "allowlist.yaml")
	if wrote, err := writeIfMissing(path, content); err != nil {
		return err
	} else if wrote {
		created = append(created, path)
	}

	fmt.Println("scriptguard init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, p := range created {
			fmt.Printf("  %s\n", p)
		}
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Check a script:")
	fmt.Println("  scriptguard validate <file.lua>")
	fmt.Println()
	fmt.Printf("Custom profiles go in %s/<name>.yaml\n", profilesDir)
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/scriptguard", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".scriptguard"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultAllowlistYAML renders the named profile, or the built-in
// defaults, with a commented header.
func defaultAllowlistYAML(profile string) (string, error) {
	al := allowlist.NewDefault()
	if profile != "" {
		var err error
		if al, err = allowlist.Profile(profile); err != nil {
			return "", fmt.Errorf("unknown profile %q: %w", profile, err)
		}
	}
	data, err := al.ToYAML()
	if err != nil {
		return "", err
	}
	header := "# scriptguard allowlist.\n" +
		"# modules and builtins name everything a script may reach.\n" +
		"# forbidden_* entries are rejected with a specific violation kind.\n" +
		"# forbidden_attributes accepts glob patterns (e.g. __*).\n\n"
	return header + string(data), nil
}
