package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/validate"
)

// ValidateInput defines parameters for the script_validate tool.
type ValidateInput struct {
	Script string `json:"script" jsonschema:"Lua source to check"`
}

// ValidateOutput is the validation verdict.
type ValidateOutput struct {
	Valid      bool                 `json:"valid"`
	Errors     []string             `json:"errors"`
	Warnings   []string             `json:"warnings"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

// ExecuteInput defines parameters for the script_execute tool.
type ExecuteInput struct {
	Script  string         `json:"script" jsonschema:"Lua source to run"`
	Globals map[string]any `json:"globals,omitempty" jsonschema:"values predeclared as globals"`
}

// ExecuteOutput contains the execution result or block details.
type ExecuteOutput struct {
	Success    bool                 `json:"success"`
	Output     []string             `json:"output"`
	Error      string               `json:"error,omitempty"`
	ErrorKind  string               `json:"error_kind,omitempty"`
	Bindings   map[string]any       `json:"bindings,omitempty"`
	Truncated  bool                 `json:"truncated,omitempty"`
	Commands   []bridge.Record      `json:"commands,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
	RunID      string               `json:"run_id,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	Blocked    bool                 `json:"blocked,omitempty"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

// CommandsInput defines parameters for the script_commands tool.
type CommandsInput struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"command namespace such as FILE; omit for all"`
}

// CommandsOutput is the rendered command reference.
type CommandsOutput struct {
	Namespaces []string `json:"namespaces"`
	Help       string   `json:"help"`
}

func (s *Server) handleValidate(_ context.Context, _ *mcpsdk.CallToolRequest, input ValidateInput) (*mcpsdk.CallToolResult, ValidateOutput, error) {
	r := s.interp.ValidateOnly(input.Script)
	return nil, ValidateOutput{
		Valid:      r.Valid,
		Errors:     r.Errors,
		Warnings:   r.Warnings,
		Violations: r.Violations,
	}, nil
}

func (s *Server) handleExecute(ctx context.Context, _ *mcpsdk.CallToolRequest, input ExecuteInput) (*mcpsdk.CallToolResult, ExecuteOutput, error) {
	res, err := s.interp.Execute(ctx, input.Script, input.Globals)
	if err != nil {
		var secErr *sandbox.SecurityError
		if errors.As(err, &secErr) {
			s.logger.Info("script_execute blocked", "violations", len(secErr.Violations))
			return &mcpsdk.CallToolResult{IsError: true}, ExecuteOutput{
				Output:     []string{},
				Error:      secErr.Error(),
				ErrorKind:  "security",
				Blocked:    true,
				Violations: secErr.Violations,
			}, nil
		}
		return nil, ExecuteOutput{}, err
	}

	out := ExecuteOutput{
		Success:    res.Success,
		Output:     res.Output,
		Error:      res.Error,
		ErrorKind:  string(res.Kind),
		Bindings:   res.Bindings,
		Truncated:  res.Truncated,
		Commands:   res.Commands,
		Warnings:   res.Warnings,
		RunID:      res.RunID,
		DurationMs: res.DurationMs,
	}
	if !res.Success {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCommands(_ context.Context, _ *mcpsdk.CallToolRequest, input CommandsInput) (*mcpsdk.CallToolResult, CommandsOutput, error) {
	help, err := s.catalog.Help(input.Namespace)
	if err != nil {
		return nil, CommandsOutput{}, err
	}
	var names []string
	for _, ns := range s.catalog.Namespaces() {
		names = append(names, ns.Name)
	}
	return nil, CommandsOutput{Namespaces: names, Help: help}, nil
}
