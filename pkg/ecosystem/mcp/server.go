// Package mcp exposes script running, validation and testing as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with the specscript tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"specscript",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("specscript/run",
			mcp.WithDescription("Run a SpecScript file (.spec.yaml or .spec.md) and return its result and console output"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the script file")),
			mcp.WithObject("input", mcp.Description("Input parameters, bound to ${input}")),
			mcp.WithObject("vars", mcp.Description("Extra variables set before the script runs")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("specscript/validate",
			mcp.WithDescription("Validate the commands of a SpecScript file against the command library"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the script file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("specscript/test",
			mcp.WithDescription("Run the test cases of a SpecScript file or of every script in a directory"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to a script file or directory")),
			mcp.WithString("filter", mcp.Description("Run only test cases whose name contains this text (optional)")),
		),
		HandleTest,
	)

	s.AddTool(
		mcp.NewTool("specscript/schema",
			mcp.WithDescription("Export the JSON Schema of SpecScript scripts"),
			mcp.WithString("command", mcp.Description("Return only the argument schema of this command (optional)")),
		),
		HandleSchema,
	)

	return s
}
