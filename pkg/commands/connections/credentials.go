package connections

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// KeyCredentialsFile overrides the credentials file for a session.
const KeyCredentialsFile engine.SessionKey = "connections.credentials-file"

// UnknownTargetError tags command errors for targets without credentials.
const UnknownTargetError = "unknown target"

// settings locates the credentials file.
type settings struct {
	CredentialsFile string `env:"SPECSCRIPT_CREDENTIALS"`
	Home            string `env:"SPECSCRIPT_HOME"`
}

// fileMu serialises read-modify-write cycles on credential files.
var fileMu sync.Mutex

// CredentialsFile returns the credentials file of the session: the
// session override, else $SPECSCRIPT_CREDENTIALS, else credentials.yaml in
// $SPECSCRIPT_HOME or ~/.specscript.
func CredentialsFile(c *engine.Context) (string, error) {
	if f, ok := engine.SessionValue[string](c.Session, KeyCredentialsFile); ok && f != "" {
		return f, nil
	}
	s, err := env.ParseAs[settings]()
	if err != nil {
		return "", fmt.Errorf("parse env: %w", err)
	}
	if s.CredentialsFile != "" {
		return s.CredentialsFile, nil
	}
	home := s.Home
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate credentials: %w", err)
		}
		home = filepath.Join(userHome, ".specscript")
	}
	return filepath.Join(home, "credentials.yaml"), nil
}

// store is the credentials file: target name → {default, credentials}.
type store struct {
	path    string
	targets *node.Object
}

func load(c *engine.Context) (*store, error) {
	path, err := CredentialsFile(c)
	if err != nil {
		return nil, engine.InternalError(err, "credentials")
	}
	n, err := node.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &store{path: path, targets: node.NewObject()}, nil
	}
	if err != nil {
		return nil, engine.InternalError(err, "credentials")
	}
	if n == nil {
		return &store{path: path, targets: node.NewObject()}, nil
	}
	targets, ok := n.(*node.Object)
	if !ok {
		return nil, engine.FormatError("credentials file %s must hold an object of targets", path)
	}
	return &store{path: path, targets: targets}, nil
}

func (s *store) save() error {
	text, err := node.YAML(s.targets)
	if err != nil {
		return engine.InternalError(err, "credentials")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return engine.InternalError(err, "credentials")
	}
	if err := os.WriteFile(s.path, []byte(text), 0o600); err != nil {
		return engine.InternalError(err, "credentials")
	}
	return nil
}

// target returns the entry of name, creating it when create is set.
func (s *store) target(name string, create bool) (*node.Object, bool) {
	if t, ok := s.targets.Get(name); ok {
		if obj, ok := t.(*node.Object); ok {
			return obj, true
		}
	}
	if !create {
		return nil, false
	}
	t := node.ObjectOf("credentials", []any{})
	s.targets.Set(name, t)
	return t, true
}

func list(t *node.Object) []any {
	v, _ := t.Get("credentials")
	items, _ := v.([]any)
	return items
}

// pick returns the credentials called name, else the target's default,
// else the first entry.
func pick(t *node.Object, name string) (any, bool) {
	items := list(t)
	if name == "" {
		if d, ok := t.Get("default"); ok {
			name = node.Text(d)
		}
	}
	for _, item := range items {
		if obj, ok := item.(*node.Object); ok {
			if n, _ := obj.Get("name"); name != "" && node.Text(n) == name {
				return obj, true
			}
		}
	}
	if name == "" && len(items) > 0 {
		return items[0], true
	}
	return nil, false
}

func unknownTarget(name string) error {
	return engine.TypedError(UnknownTargetError, node.ObjectOf("target", name), "Unknown target %s", name)
}

func field(arg *node.Object, command, name string) (string, error) {
	v, ok := arg.Get(name)
	if !ok || node.Text(v) == "" {
		return "", engine.FormatError("%s: expected field '%s'", command, name)
	}
	return node.Text(v), nil
}

// CreateCredentials appends {target, credentials} to the store and
// returns the new credentials.
var CreateCredentials = &engine.Handler{
	Name:  "Create credentials",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		target, err := field(arg, "Create credentials", "target")
		if err != nil {
			return nil, err
		}
		creds, ok := arg.Get("credentials")
		if !ok {
			return nil, engine.FormatError("Create credentials: expected field 'credentials'")
		}

		fileMu.Lock()
		defer fileMu.Unlock()
		s, err := load(c)
		if err != nil {
			return nil, err
		}
		t, _ := s.target(target, true)
		t.Set("credentials", append(list(t), node.Clone(creds)))
		if err := s.save(); err != nil {
			return nil, err
		}
		return creds, nil
	},
}

// DeleteCredentials removes the credentials called name from a target.
var DeleteCredentials = &engine.Handler{
	Name:  "Delete credentials",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		target, err := field(arg, "Delete credentials", "target")
		if err != nil {
			return nil, err
		}
		name, err := field(arg, "Delete credentials", "name")
		if err != nil {
			return nil, err
		}

		fileMu.Lock()
		defer fileMu.Unlock()
		s, err := load(c)
		if err != nil {
			return nil, err
		}
		t, ok := s.target(target, false)
		if !ok {
			return nil, nil
		}
		kept := []any{}
		for _, item := range list(t) {
			if obj, ok := item.(*node.Object); ok {
				if n, _ := obj.Get("name"); node.Text(n) == name {
					continue
				}
			}
			kept = append(kept, item)
		}
		t.Set("credentials", kept)
		return nil, s.save()
	},
}

// GetAllCredentials returns the credentials list of a target.
var GetAllCredentials = &engine.Handler{
	Name:  "Get all credentials",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		s, err := load(c)
		if err != nil {
			return nil, err
		}
		t, ok := s.target(node.Text(arg), false)
		if !ok {
			return nil, unknownTarget(node.Text(arg))
		}
		return list(t), nil
	},
}

// GetCredentials returns one set of credentials of a target: the named
// one with {target, name}, else the default, else the first.
var GetCredentials = &engine.Handler{
	Name:  "Get credentials",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return getCredentials(c, node.Text(arg), "")
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		target, err := field(arg, "Get credentials", "target")
		if err != nil {
			return nil, err
		}
		name, _ := arg.Get("name")
		return getCredentials(c, target, node.Text(name))
	},
}

func getCredentials(c *engine.Context, target, name string) (any, error) {
	s, err := load(c)
	if err != nil {
		return nil, err
	}
	t, ok := s.target(target, false)
	if !ok {
		return nil, unknownTarget(target)
	}
	creds, ok := pick(t, name)
	if !ok {
		data := node.ObjectOf("target", target, "name", name)
		return nil, engine.TypedError(UnknownTargetError, data, "No credentials %q for %s", name, target)
	}
	return creds, nil
}

// Credentials returns the whole store: every target with its default and
// credentials list.
var Credentials = &engine.Handler{
	Name:  "Credentials",
	Group: group,
	Scalar: func(c *engine.Context, _ any) (any, error) {
		s, err := load(c)
		if err != nil {
			return nil, err
		}
		return s.targets, nil
	},
}

// SetDefaultCredentials marks the credentials called name as the default
// of a target. An unknown target is ignored.
var SetDefaultCredentials = &engine.Handler{
	Name:  "Set default credentials",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		target, err := field(arg, "Set default credentials", "target")
		if err != nil {
			return nil, err
		}
		name, err := field(arg, "Set default credentials", "name")
		if err != nil {
			return nil, err
		}

		fileMu.Lock()
		defer fileMu.Unlock()
		s, err := load(c)
		if err != nil {
			return nil, err
		}
		t, ok := s.target(target, false)
		if !ok {
			return nil, nil
		}
		t.Set("default", name)
		return nil, s.save()
	},
}
