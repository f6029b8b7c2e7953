package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sgmcp "github.com/ppiankov/scriptguard/internal/mcp"
)

var mcpEngine engineFlags

func init() {
	rootCmd.AddCommand(mcpCmd)
	addEngineFlags(mcpCmd, &mcpEngine)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs scriptguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: script_validate, script_execute, script_commands.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(mcpEngine, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv, err := sgmcp.New(sgmcp.Config{
		Interpreter: eng.interp,
		Version:     version,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "scriptguard MCP server running on stdio")
	if profileName != "" {
		fmt.Fprintf(os.Stderr, "Profile: %s\n", profileName)
	}
	return srv.Run(ctx)
}
