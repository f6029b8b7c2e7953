package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/bridge"
)

func init() {
	rootCmd.AddCommand(commandsCmd)
}

var commandsCmd = &cobra.Command{
	Use:   "commands [namespace]",
	Short: "List the bridge commands scripts can call",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns := ""
		if len(args) == 1 {
			ns = strings.ToUpper(args[0])
		}
		help, err := bridge.DefaultCatalog().Help(ns)
		if err != nil {
			return err
		}
		fmt.Print(help)
		return nil
	},
}
