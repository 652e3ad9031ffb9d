// Package files implements commands that read and write files and run
// other script files.
package files

import (
	"os"
	"path/filepath"

	scriptfiles "github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "files"

// ErrorType tags command errors raised for file system failures.
const ErrorType = "file"

// Handlers returns the file commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{ReadFile, WriteFile, RunScript, TempFile}
}

// FileRef names a file either relative to the working directory (file) or
// relative to the script's directory (resource).
type FileRef struct {
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`
}

// WriteArgs is the object form of Write file.
type WriteArgs struct {
	File    string `yaml:"file" json:"file" jsonschema:"required"`
	Content any    `yaml:"content,omitempty" json:"content,omitempty" jsonschema:"description=Defaults to the current output"`
}

// RunArgs is the object form of Run script.
type RunArgs struct {
	FileRef `yaml:",inline"`
	Input   any `yaml:"input,omitempty" json:"input,omitempty"`
}

// path resolves a scalar or {file|resource} argument. Plain names are
// taken relative to dir.
func path(c *engine.Context, arg any, dir string) (string, error) {
	switch v := arg.(type) {
	case *node.Object:
		if f, ok := v.Get("file"); ok {
			return path(c, f, c.WorkingDir)
		}
		if r, ok := v.Get("resource"); ok {
			return path(c, r, c.ScriptDir)
		}
		return "", engine.FormatError("expected either 'file' or 'resource' property")
	case string:
		if filepath.IsAbs(v) {
			return v, nil
		}
		return filepath.Join(dir, v), nil
	default:
		return "", engine.FormatError("unsupported file reference: %s", node.Text(arg))
	}
}

// ReadFile reads a YAML or JSON file.
var ReadFile = &engine.Handler{
	Name:  "Read file",
	Group: group,
	Args:  &FileRef{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return read(c, arg)
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return read(c, arg)
	},
}

func read(c *engine.Context, arg any) (any, error) {
	file, err := path(c, arg, c.WorkingDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(file); err != nil {
		return nil, engine.FormatError("file not found: %s", file)
	}
	out, err := node.ReadFile(file)
	if err != nil {
		return nil, engine.FormatError("%v", err)
	}
	return out, nil
}

// WriteFile writes content, or the current output, to a file. Text is
// written verbatim and other values as YAML. Parent directories are
// created as needed.
var WriteFile = &engine.Handler{
	Name:  "Write file",
	Group: group,
	Args:  &WriteArgs{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return nil, write(c, node.Text(arg), c.Output(), false)
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		f, ok := arg.Get("file")
		if !ok {
			return nil, engine.FormatError("Write file: expected field 'file'")
		}
		content, hasContent := arg.Get("content")
		if !hasContent {
			content = c.Output()
		}
		return nil, write(c, node.Text(f), content, hasContent)
	},
}

func write(c *engine.Context, name string, content any, explicit bool) error {
	if content == nil && !explicit {
		return engine.NewCommandError("Write file requires 'content' parameter or non-null output variable.")
	}
	file := name
	if !filepath.IsAbs(file) {
		file = filepath.Join(c.WorkingDir, file)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return &engine.CommandError{Type: ErrorType, Message: err.Error(), Err: err}
	}
	text := node.Display(content)
	if node.KindOf(content) != node.KindScalar {
		text += "\n"
	}
	if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
		return &engine.CommandError{Type: ErrorType, Message: err.Error(), Err: err}
	}
	return nil
}

// RunScript runs another script file as a new script boundary. The scalar
// form is relative to the script's directory and passes an empty input.
var RunScript = &engine.Handler{
	Name:  "Run script",
	Group: group,
	Args:  &RunArgs{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		file, err := path(c, arg, c.ScriptDir)
		if err != nil {
			return nil, err
		}
		return run(c, file, node.NewObject())
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		file, err := path(c, arg.Without("input"), c.WorkingDir)
		if err != nil {
			return nil, err
		}
		input, ok := arg.Get("input")
		if !ok {
			input = node.NewObject()
		}
		return run(c, file, input)
	},
}

func run(c *engine.Context, file string, input any) (any, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, engine.FormatError("file not found: %s", file)
	}
	return scriptfiles.Invoke(c, file, input)
}

// TempFile writes content to a new file in the session's temporary
// directory and returns its path. The object form is {name, content};
// the scalar form writes the scalar.
var TempFile = &engine.Handler{
	Name:  "Temp file",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return temp(c, "", arg)
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		content, ok := arg.Get("content")
		if !ok {
			content = c.Output()
		}
		name, _ := arg.Get("name")
		return temp(c, node.Text(name), content)
	},
}

func temp(c *engine.Context, name string, content any) (any, error) {
	dir, err := c.TempDir()
	if err != nil {
		return nil, engine.InternalError(err, "Temp file")
	}
	var file string
	if name != "" {
		file = filepath.Join(dir, filepath.Base(name))
	} else {
		f, err := os.CreateTemp(dir, "temp-*")
		if err != nil {
			return nil, engine.InternalError(err, "Temp file")
		}
		file = f.Name()
		f.Close()
	}
	if err := os.WriteFile(file, []byte(node.Display(content)), 0o644); err != nil {
		return nil, engine.InternalError(err, "Temp file")
	}
	return file, nil
}
