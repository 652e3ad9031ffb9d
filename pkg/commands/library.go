// Package commands assembles the standard command library.
package commands

import (
	"sync"

	"github.com/ormasoftchile/specscript/pkg/commands/connections"
	"github.com/ormasoftchile/specscript/pkg/commands/controlflow"
	"github.com/ormasoftchile/specscript/pkg/commands/data"
	"github.com/ormasoftchile/specscript/pkg/commands/db"
	"github.com/ormasoftchile/specscript/pkg/commands/errors"
	"github.com/ormasoftchile/specscript/pkg/commands/files"
	"github.com/ormasoftchile/specscript/pkg/commands/http"
	"github.com/ormasoftchile/specscript/pkg/commands/interaction"
	"github.com/ormasoftchile/specscript/pkg/commands/mcp"
	"github.com/ormasoftchile/specscript/pkg/commands/schema"
	"github.com/ormasoftchile/specscript/pkg/commands/scriptinfo"
	"github.com/ormasoftchile/specscript/pkg/commands/shell"
	testcmds "github.com/ormasoftchile/specscript/pkg/commands/testing"
	"github.com/ormasoftchile/specscript/pkg/commands/util"
	"github.com/ormasoftchile/specscript/pkg/commands/variables"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
)

var (
	libraryOnce sync.Once
	library     *engine.Registry
)

// Library returns the standard command library. The registry is built
// once and must not be modified; use NewLibrary for an extensible copy.
func Library() *engine.Registry {
	libraryOnce.Do(func() {
		library = NewLibrary()
	})
	return library
}

// NewLibrary returns a fresh registry holding every standard command.
func NewLibrary() *engine.Registry {
	r := engine.NewRegistry()
	for _, handlers := range [][]*engine.Handler{
		controlflow.Handlers(),
		errors.Handlers(),
		variables.Handlers(),
		scriptinfo.Handlers(),
		util.Handlers(),
		data.Handlers(),
		testcmds.Handlers(),
		interaction.Handlers(),
		files.Handlers(),
		shell.Handlers(),
		db.Handlers(),
		schema.Handlers(),
		http.Handlers(),
		connections.Handlers(),
		mcp.Handlers(),
	} {
		r.Register(handlers...)
	}
	return r
}
