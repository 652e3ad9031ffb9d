package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ServerErrorType tags command errors for tool calls the server reports
// as failed. The error data is the parsed first text content.
const ServerErrorType = "MCP Server error"

// KeyClients holds the *clients cache of a session.
const KeyClients engine.SessionKey = "mcp.clients"

// Target selects the server of a tool call: a server started in this
// session by name, or a stdio, http or sse endpoint.
type Target struct {
	Name    string            `yaml:"name,omitempty" json:"name,omitempty"`
	Type    string            `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=internal,enum=stdio,enum=http,enum=sse"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Token   string            `yaml:"token,omitempty" json:"token,omitempty"`
}

// CallOptions is the argument of Call Mcp tool.
type CallOptions struct {
	Tool   string `yaml:"tool" json:"tool" jsonschema:"required"`
	Server any    `yaml:"server" json:"server" jsonschema:"required"`
	Input  any    `yaml:"input,omitempty" json:"input,omitempty"`
}

// CallTool calls a tool on an MCP server and returns its first text
// content, parsed as YAML or JSON when possible. Connections are opened
// once per session and closed when the session is cleaned up.
var CallTool = &engine.Handler{
	Name:  "Call Mcp tool",
	Group: group,
	Args:  &CallOptions{},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		tool, _ := arg.Get("tool")
		if node.Text(tool) == "" {
			return nil, engine.FormatError("Call Mcp tool: expected field 'tool'")
		}
		rawTarget, ok := arg.Get("server")
		if !ok {
			return nil, engine.FormatError("Call Mcp tool: expected field 'server'")
		}
		target, err := targetOf(rawTarget)
		if err != nil {
			return nil, err
		}
		input, ok := arg.Get("input")
		if !ok {
			input, _ = arg.Get("arguments")
		}
		return call(c, target, node.Text(tool), input)
	},
}

func (t Target) String() string {
	switch t.Type {
	case "internal":
		return t.Name
	case "stdio":
		return t.Command
	}
	return t.URL
}

func targetOf(raw any) (Target, error) {
	if name, ok := raw.(string); ok {
		return Target{Type: "internal", Name: name}, nil
	}
	var t Target
	if err := node.Decode(raw, &t); err != nil {
		return t, engine.FormatError("Call Mcp tool: server: %v", err)
	}
	if t.Type == "" && t.Name != "" {
		t.Type = "internal"
	}
	return t, nil
}

func call(c *engine.Context, target Target, tool string, input any) (any, error) {
	mc, err := clientFor(c, target)
	if err != nil {
		return nil, err
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = tool
	args := map[string]any{}
	if input != nil {
		data, err := node.JSON(input, false)
		if err != nil {
			return nil, engine.InternalError(err, "Call Mcp tool")
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, engine.FormatError("Call Mcp tool: input must be an object")
		}
	}
	req.Params.Arguments = args

	result, err := mc.CallTool(c.Context(), req)
	if err != nil {
		return nil, engine.TypedError(ServerErrorType, nil, "Tool '%s' call failed: %v", tool, err)
	}
	first := firstText(result)
	if result.IsError {
		return nil, engine.TypedError(ServerErrorType, first, "Tool '%s' call failed", tool)
	}
	return first, nil
}

func firstText(result *mcpgo.CallToolResult) any {
	if len(result.Content) == 0 {
		return "Tool executed but returned no content"
	}
	switch content := result.Content[0].(type) {
	case mcpgo.TextContent:
		return node.ParseIfPossible(content.Text)
	case *mcpgo.TextContent:
		return node.ParseIfPossible(content.Text)
	default:
		return fmt.Sprintf("Tool executed successfully with result of type %T", content)
	}
}

type clients struct {
	mu   sync.Mutex
	open map[string]*client.Client
}

func clientsOf(s *engine.Session) *clients {
	return s.Shared(KeyClients, func() any {
		return &clients{open: make(map[string]*client.Client)}
	}).(*clients)
}

// clientFor returns the session's initialized client for target, opening
// it on first use.
func clientFor(c *engine.Context, target Target) (*client.Client, error) {
	key, err := json.Marshal(target)
	if err != nil {
		return nil, engine.InternalError(err, "Call Mcp tool")
	}
	cache := clientsOf(c.Session)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if mc, ok := cache.open[string(key)]; ok {
		return mc, nil
	}

	mc, err := newClient(c, target)
	if err != nil {
		return nil, err
	}
	if err := mc.Start(context.Background()); err != nil {
		mc.Close()
		return nil, engine.TypedError(ServerErrorType, nil, "Failed to connect to MCP server: %v", err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "specscript", Version: "1.0.0"}
	if _, err := mc.Initialize(c.Context(), initReq); err != nil {
		mc.Close()
		return nil, engine.TypedError(ServerErrorType, nil, "Failed to initialize MCP session: %v", err)
	}

	cache.open[string(key)] = mc
	engine.ServicesOf(c.Session).Add("mcp client "+target.String()+" "+string(key), func() error {
		cache.mu.Lock()
		delete(cache.open, string(key))
		cache.mu.Unlock()
		return mc.Close()
	})
	return mc, nil
}

func newClient(c *engine.Context, t Target) (*client.Client, error) {
	headers := make(map[string]string, len(t.Headers)+1)
	for k, v := range t.Headers {
		headers[k] = v
	}
	if t.Token != "" {
		headers["Authorization"] = "Bearer " + t.Token
	}

	var (
		mc  *client.Client
		err error
	)
	switch t.Type {
	case "internal":
		srv, ok := Lookup(c.Session, t.Name)
		if !ok {
			return nil, engine.FormatError("Server '%s' is not running. Start it with 'Mcp server' command first.", t.Name)
		}
		mc, err = client.NewInProcessClient(srv)
	case "stdio":
		words := strings.Fields(t.Command)
		if len(words) == 0 {
			return nil, engine.FormatError("Call Mcp tool: stdio server needs 'command'")
		}
		mc, err = client.NewStdioMCPClient(words[0], os.Environ(), words[1:]...)
	case "http":
		if t.URL == "" {
			return nil, engine.FormatError("Call Mcp tool: http server needs 'url'")
		}
		mc, err = client.NewStreamableHttpClient(t.URL, transport.WithHTTPHeaders(headers))
	case "sse":
		if t.URL == "" {
			return nil, engine.FormatError("Call Mcp tool: sse server needs 'url'")
		}
		mc, err = client.NewSSEMCPClient(t.URL, client.WithHeaders(headers))
	default:
		return nil, engine.FormatError("Unknown MCP server type: %s", t.Type)
	}
	if err != nil {
		return nil, engine.TypedError(ServerErrorType, nil, "Failed to connect to MCP server: %v", err)
	}
	return mc, nil
}
