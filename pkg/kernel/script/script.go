// Package script implements the command and script model: flattening a
// document tree into an ordered list of (name, argument) commands.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ErrNotAnObject is returned when a script-level node is not an object.
var ErrNotAnObject = errors.New("script entries must be objects")

// Command is one (name, argument) pair.
type Command struct {
	Name string
	Arg  any
}

// Node returns the command as a single-key object.
func (c Command) Node() *node.Object {
	return node.ObjectOf(c.Name, c.Arg)
}

// Script is an ordered list of commands with an optional display title.
type Script struct {
	Commands []Command
	Title    string
}

// FromCommands builds a script from already-flattened commands.
func FromCommands(cmds ...Command) *Script {
	return &Script{Commands: cmds}
}

// FromNode flattens a document node. An object yields one command per key
// in order; an array is flattened element by element.
func FromNode(n any) (*Script, error) {
	cmds, err := flatten(n)
	if err != nil {
		return nil, err
	}
	return &Script{Commands: cmds}, nil
}

// FromNodes flattens a list of documents into a single script.
func FromNodes(nodes []any) (*Script, error) {
	s := &Script{}
	for _, n := range nodes {
		cmds, err := flatten(n)
		if err != nil {
			return nil, err
		}
		s.Commands = append(s.Commands, cmds...)
	}
	return s, nil
}

func flatten(n any) ([]Command, error) {
	switch v := n.(type) {
	case nil:
		return nil, nil
	case *node.Object:
		cmds := make([]Command, 0, v.Len())
		for k, arg := range v.All() {
			cmds = append(cmds, Command{Name: k, Arg: arg})
		}
		return cmds, nil
	case []any:
		var cmds []Command
		for _, item := range v {
			sub, err := flatten(item)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, sub...)
		}
		return cmds, nil
	default:
		return nil, fmt.Errorf("%w: got %s %q", ErrNotAnObject, node.KindOf(n), node.Text(n))
	}
}

// Parse reads a YAML script, which may consist of several documents.
func Parse(text string) (*Script, error) {
	return Read(strings.NewReader(text))
}

// Read reads a YAML script from r.
func Read(r io.Reader) (*Script, error) {
	docs, err := node.ParseAll(r)
	if err != nil {
		return nil, err
	}
	return FromNodes(docs)
}

// LoadFile reads a YAML script file.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ToNodes re-serialises the script as a list of single-key objects, one per
// command. Feeding the result to FromNodes yields an equal script.
func (s *Script) ToNodes() []any {
	out := make([]any, len(s.Commands))
	for i, c := range s.Commands {
		out[i] = c.Node()
	}
	return out
}

// Find returns the first command with the given name.
func (s *Script) Find(name string) (Command, bool) {
	for _, c := range s.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Split slices the script into segments that each start with a command
// named marker. Commands before the first marker are dropped; a script
// without markers yields no segments.
func (s *Script) Split(marker string) []*Script {
	var segments []*Script
	var current *Script
	for _, c := range s.Commands {
		if c.Name == marker {
			current = &Script{Title: node.Text(c.Arg)}
			segments = append(segments, current)
		}
		if current != nil {
			current.Commands = append(current.Commands, c)
		}
	}
	return segments
}

// Names lists the command names in order.
func (s *Script) Names() []string {
	names := make([]string, len(s.Commands))
	for i, c := range s.Commands {
		names[i] = c.Name
	}
	return names
}
