// Package engine implements the sequential script execution engine: the
// script context, the handler registry and dispatch protocol, and the run
// loop with its sticky-error state machine.
package engine

import (
	"errors"
	"time"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// Run executes a script as a script boundary. A non-local exit raised
// anywhere below stops here and its value becomes the result. Errors
// leaving the boundary are tagged with the script name if they carry none.
func Run(s *script.Script, c *Context) (any, error) {
	name := c.Name()
	if name == "" {
		name = s.Title
	}
	start := time.Now()
	if c.Trace != nil {
		c.Trace.EmitRunStart(name, len(s.Commands))
	}

	out, err := RunCommands(s, c)

	status := "completed"
	if ex, ok := IsExit(err); ok {
		out, err = ex.Value, nil
		if c.Trace != nil {
			c.Trace.EmitExit(name)
		}
	}
	if err != nil {
		status = "failed"
		attachContext(err, name)
	}
	if c.Trace != nil {
		c.Trace.EmitRunComplete(name, status, time.Since(start))
	}
	return out, err
}

// RunCommands executes the commands of s in order within the current
// script boundary. It implements the error state machine:
//
//   - while c.Error is set, commands whose handler is not an error handler
//     are skipped;
//   - a CommandError raised by a command is stored in c.Error and execution
//     continues with the next command;
//   - any other error, including a non-local exit, returns immediately;
//   - a non-nil result becomes the implicit output.
//
// If an error is still pending after the last command, it is returned.
// Otherwise the result is the last non-nil output of this run.
func RunCommands(s *script.Script, c *Context) (any, error) {
	var output any

	for _, cmd := range s.Commands {
		h, err := c.Handler(cmd.Name)
		if err != nil {
			return nil, withCommand(err, cmd)
		}

		if c.Error != nil && !h.ErrorHandler {
			if c.Trace != nil {
				c.Trace.EmitCommandComplete(cmd.Name, trace.StatusSkipped, 0, "")
			}
			continue
		}

		start := time.Now()
		if c.Trace != nil {
			c.Trace.EmitCommandStart(cmd.Name)
		}
		pending := c.Error

		result, err := Dispatch(h, cmd.Arg, c)
		if err != nil {
			if ce, ok := AsCommandError(err); ok {
				c.Error = ce
				if c.Trace != nil {
					c.Trace.EmitErrorCaptured(cmd.Name, ce.Type, ce.Message)
					c.Trace.EmitCommandComplete(cmd.Name, trace.StatusFailed, time.Since(start), ce.Message)
				}
				continue
			}
			if c.Trace != nil {
				if _, ok := IsExit(err); ok {
					c.Trace.EmitCommandComplete(cmd.Name, trace.StatusSuccess, time.Since(start), "")
				} else {
					c.Trace.EmitCommandComplete(cmd.Name, trace.StatusError, time.Since(start), err.Error())
				}
			}
			return nil, withCommand(err, cmd)
		}

		if c.Trace != nil {
			if pending != nil && c.Error == nil {
				c.Trace.EmitErrorCleared(cmd.Name, pending.Type)
			}
			c.Trace.EmitCommandComplete(cmd.Name, trace.StatusSuccess, time.Since(start), "")
		}

		if result != nil {
			output = result
			c.SetOutput(result)
		}
	}

	if c.Error != nil {
		return nil, c.Error
	}
	return output, nil
}

// RunNode flattens n and runs it as a nested segment of the current script.
// Handlers use it to execute command bodies such as branch or loop bodies.
func RunNode(n any, c *Context) (any, error) {
	s, err := script.FromNode(n)
	if err != nil {
		return nil, &Error{Kind: KindFormat, Err: err}
	}
	return RunCommands(s, c)
}

// withCommand attaches the offending command to fatal errors that do not
// carry one yet.
func withCommand(err error, cmd script.Command) error {
	var se *Error
	if errors.As(err, &se) && se.Command == nil {
		se.Command = node.ObjectOf(cmd.Name, cmd.Arg)
	}
	return err
}

func attachContext(err error, name string) {
	if name == "" {
		return
	}
	var se *Error
	if errors.As(err, &se) && se.Context == "" {
		se.Context = name
	}
	var ce *CommandError
	if errors.As(err, &ce) && ce.Context == "" {
		ce.Context = name
	}
}
