// Package connections implements "Connect to" and the credential store
// commands. Connect scripts are configured per script directory under
// "connections" in specscript-config.yaml; credentials live in a YAML file
// shared by every script of the user.
package connections

import (
	"path/filepath"

	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

const group = "connections"

// KeyConnected caches the result of each "Connect to" by target, so a
// target connects once per session.
const KeyConnected engine.SessionKey = "connections.connected"

// Handlers returns the connection and credential commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{
		ConnectTo,
		CreateCredentials,
		DeleteCredentials,
		GetAllCredentials,
		GetCredentials,
		Credentials,
		SetDefaultCredentials,
	}
}

// ConnectTo runs the connect script configured for a target and returns
// its result. The configured value is a script file relative to the
// script directory, or inline commands run in the current context.
var ConnectTo = &engine.Handler{
	Name:  "Connect to",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		target := node.Text(arg)
		if cached, ok := connected(c, target); ok {
			return cached, nil
		}

		cfg, err := files.LoadConfig(c.ScriptDir)
		if err != nil {
			return nil, engine.FormatError("Connect to: %v", err)
		}
		connect, ok, err := cfg.Connection(target)
		if err != nil {
			return nil, engine.FormatError("Connect to: %v", err)
		}
		if !ok {
			return nil, engine.FormatError("No connection script configured for %s in %s", target, filepath.Base(c.ScriptDir))
		}

		var result any
		switch v := connect.(type) {
		case string:
			file := v
			if !filepath.IsAbs(file) {
				file = filepath.Join(c.ScriptDir, file)
			}
			result, err = files.Invoke(c, file, node.NewObject())
		default:
			var s *script.Script
			if s, err = script.FromNode(v); err != nil {
				return nil, engine.FormatError("Connect to %s: %v", target, err)
			}
			result, err = engine.RunCommands(s, c)
		}
		if err != nil {
			return nil, err
		}
		remember(c, target, result)
		return result, nil
	},
}

func connected(c *engine.Context, target string) (any, bool) {
	cache, ok := engine.SessionValue[map[string]any](c.Session, KeyConnected)
	if !ok {
		return nil, false
	}
	v, ok := cache[target]
	return v, ok
}

func remember(c *engine.Context, target string, result any) {
	c.Session.Update(KeyConnected, func(old any, _ bool) any {
		prev, _ := old.(map[string]any)
		next := make(map[string]any, len(prev)+1)
		for k, v := range prev {
			next[k] = v
		}
		next[target] = result
		return next
	})
}
