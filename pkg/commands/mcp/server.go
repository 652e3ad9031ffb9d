// Package mcp implements commands that serve scripts as MCP tools,
// resources and prompts, and that call tools on MCP servers.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "mcp"

const (
	// KeyServers holds the *registry of MCP servers started in a session.
	KeyServers engine.SessionKey = "mcp.servers"
	// KeyCurrentServer names the server that Mcp tool, Mcp resource and
	// Mcp prompt add to.
	KeyCurrentServer engine.SessionKey = "mcp.current-server"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	defaultPort     = 8080
	shutdownTimeout = 2 * time.Second
)

// Handlers returns the MCP commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Server, Tool, Resource, Prompt, CallTool}
}

// ToolInfo describes a tool: its input properties and the script that
// answers calls. The script is a file name or inline commands.
type ToolInfo struct {
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	InputSchema map[string]any `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
	Script      any            `yaml:"script" json:"script" jsonschema:"required"`
}

// ResourceInfo describes a resource served under its URI.
type ResourceInfo struct {
	Name        string `yaml:"name" json:"name" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	MimeType    string `yaml:"mimeType,omitempty" json:"mimeType,omitempty"`
	Script      any    `yaml:"script" json:"script" jsonschema:"required"`
}

// PromptArgument is one argument of a prompt.
type PromptArgument struct {
	Name        string `yaml:"name" json:"name" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// PromptInfo describes a prompt and the script that renders it.
type PromptInfo struct {
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Arguments   []PromptArgument `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Script      any              `yaml:"script" json:"script" jsonschema:"required"`
}

// ServerOptions is the argument of the Mcp server command.
type ServerOptions struct {
	Name      string                  `yaml:"name" json:"name" jsonschema:"required"`
	Version   string                  `yaml:"version,omitempty" json:"version,omitempty"`
	Stop      bool                    `yaml:"stop,omitempty" json:"stop,omitempty"`
	Transport string                  `yaml:"transport,omitempty" json:"transport,omitempty" jsonschema:"enum=stdio,enum=http"`
	Port      int                     `yaml:"port,omitempty" json:"port,omitempty"`
	Path      string                  `yaml:"path,omitempty" json:"path,omitempty"`
	Tools     map[string]ToolInfo     `yaml:"tools,omitempty" json:"tools,omitempty"`
	Resources map[string]ResourceInfo `yaml:"resources,omitempty" json:"resources,omitempty"`
	Prompts   map[string]PromptInfo   `yaml:"prompts,omitempty" json:"prompts,omitempty"`
}

var definitionKeys = []string{"tools", "resources", "prompts"}

// Server starts an MCP server, or adds tools, resources and prompts to the
// running server of the same name, and makes it the current server. With
// stop: true the server is shut down. The scripts of its definitions run
// per request in a clone of the registering context.
var Server = &engine.Handler{
	Name:    "Mcp server",
	Group:   group,
	Args:    &ServerOptions{},
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		top, err := c.Resolve(arg.Without(definitionKeys...))
		if err != nil {
			return nil, err
		}
		var opts ServerOptions
		if err := node.Decode(top, &opts); err != nil {
			return nil, engine.FormatError("Mcp server: %v", err)
		}
		if opts.Name == "" {
			return nil, engine.FormatError("Mcp server: expected field 'name'")
		}

		if opts.Stop {
			c.Session.Delete(KeyCurrentServer)
			return nil, StopServer(c, opts.Name)
		}

		switch opts.Transport {
		case "":
			opts.Transport = TransportStdio
		case TransportStdio, TransportHTTP:
		default:
			return nil, engine.FormatError("Mcp server: unknown transport %q", opts.Transport)
		}

		srv, created := registryOf(c.Session).getOrCreate(opts.Name, opts.Version)
		if err := addDefinitions(c, srv, arg); err != nil {
			if created {
				registryOf(c.Session).remove(opts.Name)
			}
			return nil, err
		}
		c.Session.Set(KeyCurrentServer, opts.Name)
		if created {
			if err := start(c, srv, opts); err != nil {
				registryOf(c.Session).remove(opts.Name)
				return nil, engine.InternalError(err, "Mcp server")
			}
		}
		return nil, nil
	},
}

// Tool adds tools to the current server.
var Tool = &engine.Handler{
	Name:    "Mcp tool",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return nil, addToCurrent(c, "Mcp tool", arg, addTool)
	},
}

// Resource adds resources, keyed by URI, to the current server.
var Resource = &engine.Handler{
	Name:    "Mcp resource",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return nil, addToCurrent(c, "Mcp resource", arg, addResource)
	},
}

// Prompt adds prompts to the current server.
var Prompt = &engine.Handler{
	Name:    "Mcp prompt",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return nil, addToCurrent(c, "Mcp prompt", arg, addPrompt)
	},
}

// StopServer shuts down the named server, if it runs.
func StopServer(c *engine.Context, name string) error {
	registryOf(c.Session).remove(name)
	if err := engine.ServicesOf(c.Session).Stop(serviceName(name)); err != nil {
		return engine.InternalError(err, "Mcp server")
	}
	return nil
}

// Lookup returns the running server called name.
func Lookup(s *engine.Session, name string) (*server.MCPServer, bool) {
	return registryOf(s).get(name)
}

func serviceName(name string) string {
	return "mcp server " + name
}

type registry struct {
	mu      sync.Mutex
	servers map[string]*server.MCPServer
}

func registryOf(s *engine.Session) *registry {
	return s.Shared(KeyServers, func() any {
		return &registry{servers: make(map[string]*server.MCPServer)}
	}).(*registry)
}

func (r *registry) getOrCreate(name, version string) (*server.MCPServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[name]; ok {
		return s, false
	}
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
	)
	r.servers[name] = s
	return s, true
}

func (r *registry) get(name string) (*server.MCPServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[name]
	return s, ok
}

func (r *registry) remove(name string) {
	r.mu.Lock()
	delete(r.servers, name)
	r.mu.Unlock()
}

func start(c *engine.Context, srv *server.MCPServer, opts ServerOptions) error {
	if opts.Transport == TransportHTTP {
		return startHTTP(c, srv, opts)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Mcp server %s stopped: %v\n", opts.Name, err)
		}
	}()
	engine.ServicesOf(c.Session).Serve(serviceName(opts.Name), func() error {
		cancel()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
		}
		return nil
	})
	return nil
}

func startHTTP(c *engine.Context, srv *server.MCPServer, opts ServerOptions) error {
	port, path := opts.Port, opts.Path
	if port == 0 {
		port = defaultPort
	}
	if path == "" {
		path = "/"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	mux := http.NewServeMux()
	mux.Handle(path, server.NewStreamableHTTPServer(srv, server.WithEndpointPath(path)))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(c.Stdout, "Mcp server %s stopped: %v\n", opts.Name, err)
		}
	}()
	engine.ServicesOf(c.Session).Serve(serviceName(opts.Name), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return hs.Shutdown(ctx)
	})
	return nil
}

type addFunc func(base *engine.Context, srv *server.MCPServer, key string, def any) error

func addDefinitions(c *engine.Context, srv *server.MCPServer, arg *node.Object) error {
	adders := map[string]addFunc{"tools": addTool, "resources": addResource, "prompts": addPrompt}
	for _, key := range definitionKeys {
		raw, ok := arg.Get(key)
		if !ok {
			continue
		}
		defs, ok := raw.(*node.Object)
		if !ok {
			return engine.FormatError("Mcp server: '%s' must be an object", key)
		}
		if err := addAll(c, srv, defs, adders[key]); err != nil {
			return err
		}
	}
	return nil
}

func addToCurrent(c *engine.Context, command string, defs *node.Object, add addFunc) error {
	name, ok := engine.SessionValue[string](c.Session, KeyCurrentServer)
	if !ok {
		return engine.FormatError("%s: no MCP server found in current context. Start one with Mcp server first", command)
	}
	srv, ok := Lookup(c.Session, name)
	if !ok {
		return engine.FormatError("%s: MCP server %s is not running", command, name)
	}
	return addAll(c, srv, defs, add)
}

func addAll(c *engine.Context, srv *server.MCPServer, defs *node.Object, add addFunc) error {
	base := c.Clone()
	for key, def := range defs.All() {
		if err := add(base, srv, key, def); err != nil {
			return err
		}
	}
	return nil
}

func definition(kind, key string, def any, out any) (any, error) {
	obj, ok := def.(*node.Object)
	if !ok {
		return nil, engine.FormatError("Mcp %s %s: expected an object", kind, key)
	}
	body, ok := obj.Get("script")
	if !ok {
		return nil, engine.FormatError("Mcp %s %s: expected field 'script'", kind, key)
	}
	if err := node.Decode(obj.Without("script"), out); err != nil {
		return nil, engine.FormatError("Mcp %s %s: %v", kind, key, err)
	}
	return body, nil
}

func addTool(base *engine.Context, srv *server.MCPServer, name string, def any) error {
	var info ToolInfo
	body, err := definition("tool", name, def, &info)
	if err != nil {
		return err
	}
	schema, err := inputSchema(def.(*node.Object))
	if err != nil {
		return engine.FormatError("Mcp tool %s: %v", name, err)
	}
	srv.AddTool(mcpgo.NewToolWithRawSchema(name, info.Description, schema), func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		input, err := node.From(req.GetArguments())
		if err != nil {
			return errorResult(err.Error()), nil
		}
		result, err := run(ctx, base, body, input)
		if err != nil {
			return errorResult(errorText(err)), nil
		}
		return &mcpgo.CallToolResult{Content: []mcpgo.Content{mcpgo.NewTextContent(node.Display(result))}}, nil
	})
	return nil
}

// inputSchema is the JSON schema of a tool's arguments. inputSchema holds
// the properties, or a complete object schema when it has a type.
func inputSchema(def *node.Object) ([]byte, error) {
	raw, _ := def.Get("inputSchema")
	schema, ok := raw.(*node.Object)
	if !ok || !schema.Has("type") {
		props := raw
		if props == nil {
			props = node.NewObject()
		}
		schema = node.ObjectOf("type", "object", "properties", props)
	}
	return node.JSON(schema, false)
}

func addResource(base *engine.Context, srv *server.MCPServer, uri string, def any) error {
	var info ResourceInfo
	body, err := definition("resource", uri, def, &info)
	if err != nil {
		return err
	}
	if info.Name == "" {
		info.Name = uri
	}
	res := mcpgo.NewResource(uri, info.Name,
		mcpgo.WithResourceDescription(info.Description),
		mcpgo.WithMIMEType(info.MimeType),
	)
	srv.AddResource(res, func(ctx context.Context, req mcpgo.ReadResourceRequest) ([]mcpgo.ResourceContents, error) {
		result, err := run(ctx, base, body, node.NewObject())
		if err != nil {
			return nil, errors.New(errorText(err))
		}
		return []mcpgo.ResourceContents{mcpgo.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: info.MimeType,
			Text:     node.Display(result),
		}}, nil
	})
	return nil
}

func addPrompt(base *engine.Context, srv *server.MCPServer, name string, def any) error {
	var info PromptInfo
	body, err := definition("prompt", name, def, &info)
	if err != nil {
		return err
	}
	opts := []mcpgo.PromptOption{mcpgo.WithPromptDescription(info.Description)}
	for _, a := range info.Arguments {
		argOpts := []mcpgo.ArgumentOption{mcpgo.ArgumentDescription(a.Description)}
		if a.Required {
			argOpts = append(argOpts, mcpgo.RequiredArgument())
		}
		opts = append(opts, mcpgo.WithArgument(a.Name, argOpts...))
	}
	srv.AddPrompt(mcpgo.NewPrompt(name, opts...), func(ctx context.Context, req mcpgo.GetPromptRequest) (*mcpgo.GetPromptResult, error) {
		input := node.NewObject()
		for _, k := range slices.Sorted(maps.Keys(req.Params.Arguments)) {
			input.Set(k, req.Params.Arguments[k])
		}
		result, err := run(ctx, base, body, input)
		if err != nil {
			return nil, errors.New(errorText(err))
		}
		return &mcpgo.GetPromptResult{
			Description: info.Description,
			Messages: []mcpgo.PromptMessage{{
				Role:    mcpgo.RoleUser,
				Content: mcpgo.NewTextContent(node.Display(result)),
			}},
		}, nil
	})
	return nil
}

// run answers one request in a fresh clone of base, with input bound to
// ${input}.
func run(ctx context.Context, base *engine.Context, body, input any) (any, error) {
	local := base.Clone().WithContext(ctx)
	local.Variables[engine.InputVariable] = input
	return files.RunValue(local, body)
}

// errorText renders a failed script for an MCP client: a command error
// as its {type, message, data} document, anything else as its message.
func errorText(err error) string {
	if ce, ok := engine.AsCommandError(err); ok {
		if out, jerr := node.JSON(ce.Node(), false); jerr == nil {
			return string(out)
		}
	}
	return err.Error()
}

func errorResult(msg string) *mcpgo.CallToolResult {
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.NewTextContent(msg)},
		IsError: true,
	}
}
