// Package testing runs the test cases embedded in script files.
//
// A script file is a test file when it contains "Test case" commands. The
// commands from one "Test case" up to the next form one case; each case
// runs in its own copy of the script context, so variables set by one case
// are not visible to the next.
package testing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	testcmds "github.com/ormasoftchile/specscript/pkg/commands/testing"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// Test case statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// TestResult is the result of running one test case.
type TestResult struct {
	Script     string `json:"script"`
	Name       string `json:"name"`
	Status     string `json:"status"` // passed, failed, error
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Output     string `json:"output,omitempty"`
}

// TestSummary aggregates counts across test cases.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// Add counts one result.
func (s *TestSummary) Add(r TestResult) {
	switch r.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusError:
		s.Errors++
	}
	s.Total++
}

// Merge adds the counts of other.
func (s *TestSummary) Merge(other TestSummary) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Errors += other.Errors
}

// OK reports whether every case passed.
func (s TestSummary) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}

// TestOutput is the output of testing one script file.
type TestOutput struct {
	Script  string       `json:"script"`
	Cases   []TestResult `json:"cases"`
	Summary TestSummary  `json:"summary"`
}

// Runner executes the test cases of script files.
type Runner struct {
	// Registry is the command library the cases run with.
	Registry *engine.Registry
	// Timeout bounds each case. Zero means no limit.
	Timeout  time.Duration
	FailFast bool
	// Filter, when set, selects cases whose name contains it.
	Filter string
	Trace  *trace.Writer
}

// RunFile runs every test case of the script file at path. A script
// without test cases runs as a single case named after the file.
func (r *Runner) RunFile(ctx context.Context, path string) (*TestOutput, error) {
	s, err := files.Load(path)
	if err != nil {
		return nil, err
	}
	base, err := files.NewContext(path, r.Registry, files.Options{Trace: r.Trace})
	if err != nil {
		return nil, err
	}
	defer files.Cleanup(base)

	output := &TestOutput{Script: filepath.Base(path)}

	cases := s.Split(testcmds.TestCaseCommand)
	if len(cases) == 0 {
		whole := *s
		whole.Title = files.CommandName(path)
		cases = []*script.Script{&whole}
	}

	for _, tc := range cases {
		if r.Filter != "" && !strings.Contains(tc.Title, r.Filter) {
			continue
		}
		result := r.runCase(ctx, base, tc)
		result.Script = output.Script
		output.Cases = append(output.Cases, result)
		output.Summary.Add(result)

		if r.FailFast && result.Status != StatusPassed {
			break
		}
	}

	return output, nil
}

func (r *Runner) runCase(ctx context.Context, base *engine.Context, tc *script.Script) TestResult {
	result := TestResult{Name: tc.Title}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := base.Clone()
	console := testcmds.CaptureConsole(c, false)

	start := time.Now()
	_, err := files.Run(ctx, tc, c)
	result.DurationMs = time.Since(start).Milliseconds()
	result.Output = console.String()

	switch {
	case err == nil:
		result.Status = StatusPassed
	case engine.IsKind(err, engine.KindAssertion):
		result.Status = StatusFailed
		result.Error = err.Error()
	case isOutputMismatch(err):
		result.Status = StatusFailed
		result.Error = describeMismatch(err)
	default:
		result.Status = StatusError
		result.Error = err.Error()
	}
	if err == nil && ctx.Err() != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("test case timed out after %s", r.Timeout)
	}
	return result
}

// RunAll tests every path. Directories are searched recursively for script
// files.
func (r *Runner) RunAll(ctx context.Context, paths []string) ([]*TestOutput, TestSummary, error) {
	var outputs []*TestOutput
	var summary TestSummary

	for _, p := range paths {
		scripts, err := Discover(p)
		if err != nil {
			return nil, summary, err
		}
		for _, file := range scripts {
			out, err := r.RunFile(ctx, file)
			if err != nil {
				// A script that fails to load counts as one erroneous case.
				out = &TestOutput{
					Script: filepath.Base(file),
					Cases: []TestResult{{
						Script: filepath.Base(file),
						Name:   files.CommandName(file),
						Status: StatusError,
						Error:  err.Error(),
					}},
				}
				out.Summary.Add(out.Cases[0])
			}
			outputs = append(outputs, out)
			summary.Merge(out.Summary)

			if r.FailFast && !summary.OK() {
				return outputs, summary, nil
			}
		}
	}
	return outputs, summary, nil
}

// Discover returns path itself when it is a file, or the script files
// below it, in lexical order, when it is a directory.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("test path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var scripts []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if files.IsScript(d.Name()) {
			scripts = append(scripts, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, fmt.Errorf("discover tests: %w", err)
	}
	return scripts, nil
}

func isOutputMismatch(err error) bool {
	ce, ok := engine.AsCommandError(err)
	return ok && ce.Type == testcmds.OutputErrorType
}

// describeMismatch renders an Output error with its expected and actual
// values, which the message alone does not carry.
func describeMismatch(err error) string {
	ce, _ := engine.AsCommandError(err)
	data, ok := ce.Data.(*node.Object)
	if !ok {
		return err.Error()
	}
	expected, _ := data.Get("expected")
	actual, _ := data.Get("actual")
	return fmt.Sprintf("%s\nexpected:\n%s\nactual:\n%s", err.Error(), node.Display(expected), node.Display(actual))
}
