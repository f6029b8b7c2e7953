// Package mcp exposes the script interpreter as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/sandbox"
)

// Config holds MCP server configuration.
type Config struct {
	Interpreter *sandbox.Interpreter
	// Catalog backs script_commands. Nil uses the default catalog.
	Catalog *bridge.Catalog
	Version string
	Logger  *slog.Logger
}

// Server wraps the MCP SDK server around an Interpreter.
type Server struct {
	mcpServer *mcpsdk.Server
	interp    *sandbox.Interpreter
	catalog   *bridge.Catalog
	logger    *slog.Logger
}

// New creates an MCP server with the script tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Interpreter == nil {
		return nil, fmt.Errorf("%w: interpreter is required", sandbox.ErrConfiguration)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = bridge.DefaultCatalog()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		interp:  cfg.Interpreter,
		catalog: cfg.Catalog,
		logger:  cfg.Logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "scriptguard",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_validate",
		Description: "Check a Lua script against the allow-list without running it. Returns every violation found.",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_execute",
		Description: "Validate and run a Lua script in a fresh sandbox. Returns captured output, final bindings and the bridge commands issued. Rejected scripts return an error result with the violations.",
	}, s.handleExecute)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_commands",
		Description: "Describe the NAMESPACE.METHOD commands scripts may call. Pass a namespace to narrow the listing.",
	}, s.handleCommands)
}
