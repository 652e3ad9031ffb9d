// Package testing implements the test-case and assertion commands.
//
// Assertion failures are fatal: they end the test case instead of
// becoming a pending error that On error could swallow. Output checks are
// the exception and raise an "Output" command error, so a script can
// react to a mismatch with On error type.
package testing

import (
	"bytes"
	"io"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/condition"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "testing"

// TestCaseCommand marks the start of a test case.
const TestCaseCommand = "Test case"

// OutputErrorType tags the command errors raised by Expected output and
// Expected console output. The data is {expected, actual}.
const OutputErrorType = "Output"

// Session keys owned by this package.
const (
	// KeyConsoleCapture holds the *bytes.Buffer receiving console output.
	KeyConsoleCapture engine.SessionKey = "testing.console"
	// KeyTestCase holds the name of the running test case.
	KeyTestCase engine.SessionKey = "testing.case"
)

// Handlers returns the testing commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{TestCase, CodeExample, AssertEquals, AssertThat, ExpectedOutput, ExpectedConsoleOutput, ExpectedError}
}

// CaptureConsole redirects the console of c into a fresh buffer recorded in
// the session. With echo the output still reaches the previous writer.
func CaptureConsole(c *engine.Context, echo bool) *bytes.Buffer {
	buf := new(bytes.Buffer)
	c.Session.Set(KeyConsoleCapture, buf)
	if echo && c.Stdout != nil {
		c.Stdout = io.MultiWriter(c.Stdout, buf)
	} else {
		c.Stdout = buf
	}
	return buf
}

// TestCase names the test case that follows. It has no effect on a run
// other than recording the name.
var TestCase = &engine.Handler{
	Name:  TestCaseCommand,
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		c.Session.Set(KeyTestCase, node.Text(arg))
		return nil, nil
	},
}

// CodeExample starts a documented example: console output captured so far
// is discarded, so the next Expected console output sees only the example.
var CodeExample = &engine.Handler{
	Name:  "Code example",
	Group: group,
	Scalar: func(c *engine.Context, _ any) (any, error) {
		if buf, ok := engine.SessionValue[*bytes.Buffer](c.Session, KeyConsoleCapture); ok {
			buf.Reset()
		}
		return nil, nil
	},
}

// AssertEquals compares {actual, expected} structurally.
var AssertEquals = &engine.Handler{
	Name:  "Assert equals",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		actual, ok := arg.Get("actual")
		if !ok {
			return nil, engine.FormatError("Assert equals: expected field 'actual'")
		}
		expected, ok := arg.Get("expected")
		if !ok {
			return nil, engine.FormatError("Assert equals: expected field 'expected'")
		}
		if !node.Equal(actual, expected) {
			return nil, mismatch("Assert equals", expected, actual)
		}
		return nil, nil
	},
}

// AssertThat fails unless its condition holds.
var AssertThat = &engine.Handler{
	Name:  "Assert that",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		holds, err := condition.Eval(arg, c.Variables)
		if err != nil {
			return nil, &engine.Error{Kind: engine.KindFormat, Err: err}
		}
		if !holds {
			return nil, engine.AssertionError("Assert that: condition does not hold:\n%s", node.Display(arg))
		}
		return nil, nil
	},
}

// ExpectedOutput compares the current output with its argument.
var ExpectedOutput = &engine.Handler{
	Name:  "Expected output",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		if !node.Equal(c.Output(), arg) {
			return nil, outputError("Unexpected output.", arg, c.Output())
		}
		return nil, nil
	},
}

// ExpectedConsoleOutput compares the console output captured since the
// previous check with its argument, then resets the capture.
var ExpectedConsoleOutput = &engine.Handler{
	Name:  "Expected console output",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		buf, ok := engine.SessionValue[*bytes.Buffer](c.Session, KeyConsoleCapture)
		if !ok {
			return nil, engine.FormatError("Expected console output: console output is not captured")
		}
		actual := normalize(buf.String())
		buf.Reset()

		expected := normalize(node.Display(arg))
		if actual != expected {
			return nil, outputError("Unexpected console output.", expected, actual)
		}
		return nil, nil
	},
}

// ExpectedError requires a pending error and clears it. A scalar argument
// must equal the error message; an object may check type and message.
var ExpectedError = &engine.Handler{
	Name:         "Expected error",
	Group:        group,
	ErrorHandler: true,
	Any: func(c *engine.Context, arg any) (any, error) {
		pending := c.Error
		if pending == nil {
			return nil, engine.AssertionError("Expected error: no error was raised")
		}
		switch v := arg.(type) {
		case *node.Object:
			if t, ok := v.Get("type"); ok && node.Text(t) != pending.Type {
				return nil, engine.AssertionError("Expected error: type %q, got %q", node.Text(t), pending.Type)
			}
			if m, ok := v.Get("message"); ok && node.Text(m) != pending.Message {
				return nil, engine.AssertionError("Expected error: message %q, got %q", node.Text(m), pending.Message)
			}
		case []any:
			return nil, engine.FormatError("Expected error does not support lists")
		default:
			if want := node.Text(v); want != "" && want != pending.Message {
				return nil, engine.AssertionError("Expected error: message %q, got %q", want, pending.Message)
			}
		}
		c.Error = nil
		return nil, nil
	},
}

func mismatch(command string, expected, actual any) error {
	return engine.AssertionError("%s:\nexpected:\n%s\nactual:\n%s", command, indent(node.Display(expected)), indent(node.Display(actual)))
}

func outputError(msg string, expected, actual any) error {
	data := node.ObjectOf("expected", node.Clone(expected), "actual", node.Clone(actual))
	return engine.TypedError(OutputErrorType, data, "%s", msg)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// normalize trims trailing whitespace on every line and at the end.
func normalize(s string) string {
	lines := strings.Split(strings.TrimRight(s, " \t\r\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n")
}
