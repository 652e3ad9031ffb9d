package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	kschema "github.com/ormasoftchile/specscript/pkg/kernel/schema"
	stesting "github.com/ormasoftchile/specscript/pkg/testing"
)

// testTimeout bounds each test case run through specscript/test.
const testTimeout = 30 * time.Second

// HandleValidate implements the specscript/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	violations, err := files.Validate(path, commands.Library())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return errorResult(strings.Join(msgs, "\n")), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid", path)), nil
}

// HandleSchema implements the specscript/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["command"].(string)

	library := commands.Library()
	sch := kschema.ScriptSchema(library.Handlers())
	if name != "" {
		h, ok := library.Lookup(name)
		if !ok {
			return errorResult(fmt.Sprintf("unknown command %q", name)), nil
		}
		if h.Args == nil {
			return errorResult(fmt.Sprintf("command %q has no argument schema", name)), nil
		}
		sch = kschema.Reflect(h.Args)
	}

	data, err := kschema.Marshal(sch)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the specscript/run MCP tool. Runs are never
// interactive: missing input parameters fail instead of prompting.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	vars := make(map[string]any)
	if rawVars, ok := args["vars"].(map[string]any); ok {
		for k, v := range rawVars {
			n, err := node.From(v)
			if err != nil {
				return errorResult(fmt.Sprintf("variable %s: %s", k, err)), nil
			}
			vars[k] = n
		}
	}
	input := any(node.NewObject())
	if rawInput, ok := args["input"].(map[string]any); ok {
		n, err := node.From(rawInput)
		if err != nil {
			return errorResult(fmt.Sprintf("input: %s", err)), nil
		}
		input = n
	}
	vars[engine.InputVariable] = input

	var out bytes.Buffer
	c, err := files.NewContext(path, commands.Library(), files.Options{
		Stdout:    &out,
		Variables: vars,
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer files.Cleanup(c)

	start := time.Now()
	result, runErr := files.RunFile(ctx, path, c)

	response := map[string]any{
		"status":   "completed",
		"duration": time.Since(start).String(),
	}
	if runErr != nil {
		response["status"] = "failed"
		response["error"] = runErr.Error()
		if ce, ok := engine.AsCommandError(runErr); ok {
			response["error_type"] = ce.Type
		}
	}
	if result != nil {
		data, err := node.JSON(result, false)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		response["result"] = json.RawMessage(data)
	}
	if out.Len() > 0 {
		response["output"] = out.String()
	}

	data, _ := json.MarshalIndent(response, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: runErr != nil,
	}, nil
}

// HandleTest implements the specscript/test MCP tool.
func HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	filter, _ := args["filter"].(string)

	runner := &stesting.Runner{
		Registry: commands.Library(),
		Timeout:  testTimeout,
		Filter:   filter,
	}

	outputs, summary, err := runner.RunAll(ctx, []string{path})
	if err != nil {
		return errorResult(fmt.Sprintf("run tests: %s", err)), nil
	}

	data, _ := json.MarshalIndent(map[string]any{
		"scripts": outputs,
		"summary": summary,
	}, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !summary.OK(),
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
