// Package main provides the specscript-mcp binary, an MCP server over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	smcp "github.com/ormasoftchile/specscript/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	s := smcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
