// Package files loads script files and exposes the scripts of a directory
// as commands.
//
// A script file is either a YAML stream (.spec.yaml) or a markdown
// document with embedded script blocks (.spec.md). Every script file in
// the directory of the running script, plus the files listed under
// "imports" in the directory's specscript-config.yaml, can be called as a
// command named after the file: create-user.spec.yaml becomes "Create user".
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	testcmds "github.com/ormasoftchile/specscript/pkg/commands/testing"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/schema"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// Script file extensions and the directory configuration file.
const (
	YAMLExtension     = ".spec.yaml"
	MarkdownExtension = ".spec.md"
	ConfigFile        = "specscript-config.yaml"
)

// ScriptInfoCommand is the command holding a script's description.
const ScriptInfoCommand = "Script info"

// IsScript reports whether name has a script file extension.
func IsScript(name string) bool {
	return strings.HasSuffix(name, YAMLExtension) || strings.HasSuffix(name, MarkdownExtension)
}

func trimExtension(name string) string {
	name = strings.TrimSuffix(name, YAMLExtension)
	return strings.TrimSuffix(name, MarkdownExtension)
}

// CommandName derives the command name of a script file: the extension is
// stripped, dashes become spaces and the first letter is capitalised.
func CommandName(fileName string) string {
	name := strings.ReplaceAll(trimExtension(filepath.Base(fileName)), "-", " ")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToTitle(r)) + name[size:]
}

// CLIName derives the command-line name of a script file: lower case with
// dashes for spaces.
func CLIName(fileName string) string {
	return strings.ToLower(strings.ReplaceAll(trimExtension(filepath.Base(fileName)), " ", "-"))
}

// Load reads a script file of either format.
func Load(path string) (*script.Script, error) {
	if strings.HasSuffix(path, ".md") {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open script: %w", err)
		}
		s, err := script.FromMarkdown(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	}
	return script.LoadFile(path)
}

// Description returns the description declared by a Script info command,
// or "" when the script has none.
func Description(s *script.Script) string {
	cmd, ok := s.Find(ScriptInfoCommand)
	if !ok {
		return ""
	}
	if obj, ok := cmd.Arg.(*node.Object); ok {
		d, _ := obj.Get("description")
		return node.Text(d)
	}
	return node.Text(cmd.Arg)
}

// Config is the optional specscript-config.yaml of a script directory.
type Config struct {
	Imports []string `yaml:"imports,omitempty"`
	// Connections maps a target name to the script that connects to it:
	// a script file name relative to the directory, or inline commands.
	Connections map[string]yaml.Node `yaml:"connections,omitempty"`
}

// Connection returns the connect script configured for target as a node.
func (c *Config) Connection(target string) (any, bool, error) {
	yn, ok := c.Connections[target]
	if !ok {
		return nil, false, nil
	}
	n, err := node.FromYAML(&yn)
	if err != nil {
		return nil, true, fmt.Errorf("connection %s: %w", target, err)
	}
	return n, true, nil
}

// LoadConfig reads the directory configuration. A missing file yields an
// empty configuration.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigFile, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	return &cfg, nil
}

// CommandInfo describes a script file command.
type CommandInfo struct {
	Name     string `json:"name"`
	CLIName  string `json:"cli_name"`
	File     string `json:"file"`
	Imported bool   `json:"imported,omitempty"`
}

// Directory is the set of script file commands visible from one directory.
// It implements engine.CommandSource.
type Directory struct {
	Dir      string
	commands map[string]CommandInfo
}

// OpenDirectory scans dir for script files and its configured imports.
// Local files take precedence over imports of the same name.
func OpenDirectory(dir string) (*Directory, error) {
	d := &Directory{Dir: dir, commands: make(map[string]CommandInfo)}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	for _, imp := range cfg.Imports {
		path := imp
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := d.add(path, true); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan script directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := d.add(filepath.Join(dir, e.Name()), false); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Directory) add(path string, imported bool) error {
	if !IsScript(path) {
		return nil
	}
	if imported {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
	}
	name := CommandName(path)
	d.commands[name] = CommandInfo{Name: name, CLIName: CLIName(path), File: path, Imported: imported}
	return nil
}

// Handler implements engine.CommandSource.
func (d *Directory) Handler(name string) (*engine.Handler, bool) {
	if d == nil {
		return nil, false
	}
	info, ok := d.commands[name]
	if !ok {
		return nil, false
	}
	return FileHandler(info.Name, info.File), true
}

// Commands lists the directory's commands sorted by name.
func (d *Directory) Commands() []CommandInfo {
	out := make([]CommandInfo, 0, len(d.commands))
	for _, info := range d.commands {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a command by command name or command-line name.
func (d *Directory) Lookup(name string) (CommandInfo, bool) {
	if info, ok := d.commands[name]; ok {
		return info, true
	}
	for _, info := range d.commands {
		if info.CLIName == name {
			return info, true
		}
	}
	return CommandInfo{}, false
}

// FileHandler returns the handler that runs a script file as a command.
// The script runs as a new script boundary in a child context whose
// ${input} is the command argument.
func FileHandler(name, path string) *engine.Handler {
	return &engine.Handler{
		Name:  name,
		Group: "files",
		Any: func(c *engine.Context, arg any) (any, error) {
			if arg == nil {
				arg = node.NewObject()
			}
			return Invoke(c, path, arg)
		},
	}
}

// Invoke runs the script file at path with the given input in a child of c.
func Invoke(c *engine.Context, path string, input any) (any, error) {
	s, err := Load(path)
	if err != nil {
		return nil, engine.FormatError("%v", err)
	}
	child := c.Child(path, map[string]any{engine.InputVariable: input})
	dir, err := OpenDirectory(child.ScriptDir)
	if err != nil {
		return nil, engine.FormatError("%v", err)
	}
	child.Local = dir
	return engine.Run(s, child)
}

// RunValue runs a script given as a file name relative to the script
// directory, or as inline commands. A file runs in a child of c that
// receives c's ${input}; inline commands run in c itself.
func RunValue(c *engine.Context, body any) (any, error) {
	if file, ok := body.(string); ok {
		if !filepath.IsAbs(file) {
			file = filepath.Join(c.ScriptDir, file)
		}
		return Invoke(c, file, c.Variables[engine.InputVariable])
	}
	s, err := script.FromNode(body)
	if err != nil {
		return nil, engine.FormatError("%v", err)
	}
	return engine.Run(s, c)
}

// Validate checks the commands of the script file at path against the
// script schema of the library plus the script file commands of the
// file's directory. Load errors are returned as errors, schema problems
// as violations.
func Validate(path string, registry *engine.Registry) ([]schema.Violation, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	dir, err := OpenDirectory(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	handlers := registry.Handlers()
	for _, info := range dir.Commands() {
		if _, ok := registry.Lookup(info.Name); !ok {
			handlers = append(handlers, FileHandler(info.Name, info.File))
		}
	}
	return schema.ValidateScript(handlers, []any{s.ToNodes()})
}

// Options configures a top-level script context.
type Options struct {
	Interactive bool
	Stdout      io.Writer
	Trace       *trace.Writer
	WorkingDir  string
	Variables   map[string]any
}

// NewContext builds the top-level context for running the script at path
// with the given command library. Script file commands of the script's
// directory become available through the context.
func NewContext(path string, registry *engine.Registry, opts Options) (*engine.Context, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve script path: %w", err)
	}
	c := engine.NewContext(registry)
	c.ScriptFile = abs
	c.ScriptDir = filepath.Dir(abs)
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		c.ScriptFile = ""
		c.ScriptDir = abs
	}
	dir, err := OpenDirectory(c.ScriptDir)
	if err != nil {
		return nil, err
	}
	c.Local = dir
	c.Interactive = opts.Interactive
	c.Trace = opts.Trace
	if opts.Stdout != nil {
		c.Stdout = opts.Stdout
	}
	if opts.WorkingDir != "" {
		c.WorkingDir = opts.WorkingDir
	}
	for k, v := range opts.Variables {
		c.Variables[k] = v
	}
	return c, nil
}

// RunFile loads and runs a script file in c. Console output is captured
// (and still echoed) when the script checks it.
func RunFile(ctx context.Context, path string, c *engine.Context) (any, error) {
	s, err := Load(path)
	if err != nil {
		return nil, &engine.Error{Kind: engine.KindFormat, Err: err, Context: filepath.Base(path)}
	}
	return Run(ctx, s, c)
}

// Run runs an already loaded script in c.
func Run(ctx context.Context, s *script.Script, c *engine.Context) (any, error) {
	if _, ok := s.Find(script.ExpectedConsoleOutput); ok {
		if _, captured := c.Session.Get(testcmds.KeyConsoleCapture); !captured {
			testcmds.CaptureConsole(c, true)
		}
	}
	return engine.Run(s, c.WithContext(ctx))
}

// Cleanup stops the services started during the session and removes its
// temporary directory, if one was created.
func Cleanup(c *engine.Context) error {
	stopErr := engine.ServicesOf(c.Session).StopAll()
	dir, ok := engine.SessionValue[string](c.Session, engine.KeyScriptTempDir)
	if !ok {
		return stopErr
	}
	c.Session.Delete(engine.KeyScriptTempDir)
	return errors.Join(stopErr, os.RemoveAll(dir))
}
