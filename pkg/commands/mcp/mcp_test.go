package mcp_test

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/commands/mcp"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

func newContext(t *testing.T) *engine.Context {
	t.Helper()
	c := engine.NewContext(commands.Library())
	c.Stdout = &bytes.Buffer{}
	dir := t.TempDir()
	c.WorkingDir = dir
	c.ScriptDir = dir
	t.Cleanup(func() { files.Cleanup(c) })
	return c
}

func run(t *testing.T, c *engine.Context, src string) (any, error) {
	t.Helper()
	s, err := script.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return engine.Run(s, c)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startGreeter starts an http MCP server with a greet tool and returns
// its port.
func startGreeter(t *testing.T, c *engine.Context) int {
	t.Helper()
	port := freePort(t)
	_, err := run(t, c, fmt.Sprintf(`
- ${salutation}: Hello
- Mcp server:
    name: greeter
    version: 1.0.0
    transport: http
    port: %d
    path: /mcp
    tools:
      greet:
        description: Greets someone
        inputSchema:
          name:
            type: string
        script:
          Output: ${salutation} ${input.name}
      fail:
        description: Always fails
        script:
          Error:
            type: greeting
            message: no greeting today
`, port))
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func TestCallToolInProcess(t *testing.T) {
	c := newContext(t)
	startGreeter(t, c)

	result, err := run(t, c, `
Call Mcp tool:
  tool: greet
  server: greeter
  input:
    name: Ada
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "Hello Ada" {
		t.Errorf("result = %v, want Hello Ada", result)
	}
}

func TestCallToolOverHTTP(t *testing.T) {
	c := newContext(t)
	port := startGreeter(t, c)

	result, err := run(t, c, fmt.Sprintf(`
- Call Mcp tool:
    tool: greet
    server:
      type: http
      url: http://127.0.0.1:%d/mcp
    input:
      name: Grace
- Call Mcp tool:
    tool: greet
    server:
      type: http
      url: http://127.0.0.1:%d/mcp
    input:
      name: ${output}
`, port, port))
	if err != nil {
		t.Fatal(err)
	}
	if result != "Hello Hello Grace" {
		t.Errorf("result = %v, want Hello Hello Grace", result)
	}

	clients := 0
	for _, name := range engine.ServicesOf(c.Session).Names() {
		if strings.HasPrefix(name, "mcp client ") {
			clients++
		}
	}
	if clients != 1 {
		t.Errorf("open clients = %d, want the connection reused", clients)
	}
}

func TestCallToolServerError(t *testing.T) {
	c := newContext(t)
	startGreeter(t, c)

	result, err := run(t, c, `
- Call Mcp tool:
    tool: fail
    server: greeter
- On error type:
    MCP Server error:
      Output: ${error.data.type} ${error.data.message}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "greeting no greeting today" {
		t.Errorf("result = %v", result)
	}
}

func TestDefinitionsOnCurrentServer(t *testing.T) {
	c := newContext(t)
	startGreeter(t, c)

	_, err := run(t, c, `
- Mcp tool:
    shout:
      inputSchema:
        type: object
        properties:
          text: {type: string}
        required: [text]
      script:
        Output: ${input.text}!
- Mcp resource:
    specscript://motd:
      name: motd
      mimeType: text/plain
      script:
        Output: Have a nice day
- Mcp prompt:
    review:
      description: Review a file
      arguments:
        - name: file
          required: true
      script:
        Output: Please review ${input.file}
`)
	if err != nil {
		t.Fatal(err)
	}

	srv, ok := mcp.Lookup(c.Session, "greeter")
	if !ok {
		t.Fatal("greeter is not registered")
	}
	mc, err := client.NewInProcessClient(srv)
	if err != nil {
		t.Fatal(err)
	}
	defer mc.Close()
	ctx := context.Background()
	if err := mc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		t.Fatal(err)
	}

	tools, err := mc.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"fail", "greet", "shout"}) {
		t.Errorf("tools = %v", names)
	}

	resReq := mcpgo.ReadResourceRequest{}
	resReq.Params.URI = "specscript://motd"
	res, err := mc.ReadResource(ctx, resReq)
	if err != nil {
		t.Fatal(err)
	}
	if text, ok := res.Contents[0].(mcpgo.TextResourceContents); !ok || text.Text != "Have a nice day" {
		t.Errorf("resource = %#v", res.Contents)
	}

	promptReq := mcpgo.GetPromptRequest{}
	promptReq.Params.Name = "review"
	promptReq.Params.Arguments = map[string]string{"file": "main.go"}
	prompt, err := mc.GetPrompt(ctx, promptReq)
	if err != nil {
		t.Fatal(err)
	}
	if text, ok := prompt.Messages[0].Content.(mcpgo.TextContent); !ok || text.Text != "Please review main.go" {
		t.Errorf("prompt = %#v", prompt.Messages)
	}

	result, err := run(t, c, "Call Mcp tool: {tool: shout, server: greeter, input: {text: hey}}\n")
	if err != nil {
		t.Fatal(err)
	}
	if result != "hey!" {
		t.Errorf("shout = %v, want hey!", result)
	}
}

func TestToolWithoutServer(t *testing.T) {
	c := newContext(t)
	_, err := run(t, c, "Mcp tool:\n  x:\n    script:\n      Output: 1\n")
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("err = %v, want format error", err)
	}
}

func TestStopServer(t *testing.T) {
	c := newContext(t)
	startGreeter(t, c)

	if _, err := run(t, c, "Mcp server: {name: greeter, stop: true}\n"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mcp.Lookup(c.Session, "greeter"); ok {
		t.Error("greeter still registered after stop")
	}
	if slices.Contains(engine.ServicesOf(c.Session).Names(), "mcp server greeter") {
		t.Error("greeter service still running after stop")
	}
	if _, ok := c.Session.Get(mcp.KeyCurrentServer); ok {
		t.Error("current server kept after stop")
	}
	_, err := run(t, c, "Call Mcp tool: {tool: greet, server: greeter}\n")
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("err = %v, want format error for a stopped server", err)
	}
}

func TestUnknownTransport(t *testing.T) {
	c := newContext(t)
	_, err := run(t, c, "Mcp server: {name: x, transport: carrier-pigeon}\n")
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("err = %v, want format error", err)
	}
}
