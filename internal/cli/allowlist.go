package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/allowlist"
)

func init() {
	rootCmd.AddCommand(allowlistCmd)
	allowlistCmd.AddCommand(allowlistShowCmd)
	allowlistCmd.AddCommand(allowlistProfilesCmd)
	allowlistCmd.AddCommand(allowlistHashCmd)
}

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Inspect the effective allow-list",
}

var allowlistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective allow-list as YAML",
	Long:  "Prints the allow-list selected by --profile or --allowlist after\nnormalization. Names are sorted and deduplicated.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		al, err := loadAllowList()
		if err != nil {
			return &exitError{code: exitConfig, msg: fmt.Sprintf("load allowlist: %v", err)}
		}
		data, err := al.ToYAML()
		if err != nil {
			return err
		}
		fmt.Printf("# hash: %s\n", al.Hash())
		fmt.Print(string(data))
		return nil
	},
}

var allowlistHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the hash recorded in audit entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		al, err := loadAllowList()
		if err != nil {
			return &exitError{code: exitConfig, msg: fmt.Sprintf("load allowlist: %v", err)}
		}
		fmt.Println(al.Hash())
		return nil
	},
}

var allowlistProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List built-in and user profiles",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range allowlist.ProfileNames() {
			fmt.Println(name)
		}
	},
}
