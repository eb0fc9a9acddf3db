// Package types contains the shared vocabulary of the test engine: the
// test/suite graph nodes, cases, traits, issues, events and the per-run
// configuration value.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// idSeparator joins module and name components in the string form of an ID.
const idSeparator = "/"

// SourceLocation points at a declaration or an issue in source code.
type SourceLocation struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// IsZero reports whether the location is unset.
func (l SourceLocation) IsZero() bool {
	return l.File == "" && l.Line == 0
}

func (l SourceLocation) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ID is the hierarchical identifier of a test or suite: a module plus the
// ordered name components from the outermost suite down to the node itself.
// Source disambiguates nodes that would otherwise share a name.
type ID struct {
	Module string
	Names  []string
	Source *SourceLocation
}

// NewID builds an ID from a module and name components.
func NewID(module string, names ...string) ID {
	return ID{Module: module, Names: append([]string(nil), names...)}
}

// String renders the ID as module/name/name[@file:line].
func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.Module)
	for _, n := range id.Names {
		b.WriteString(idSeparator)
		b.WriteString(n)
	}
	if id.Source != nil {
		b.WriteString("@")
		b.WriteString(id.Source.String())
	}
	return b.String()
}

// Key is the comparable form of the ID used for map lookups.
func (id ID) Key() string {
	return id.String()
}

// Name returns the last name component, or the module for a root.
func (id ID) Name() string {
	if len(id.Names) == 0 {
		return id.Module
	}
	return id.Names[len(id.Names)-1]
}

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool {
	return id.Module == "" && len(id.Names) == 0
}

// Equal compares module, names and source disambiguator.
func (id ID) Equal(other ID) bool {
	return id.Key() == other.Key()
}

// Parent returns the ID one level up. The parent never carries a source
// disambiguator.
func (id ID) Parent() (ID, bool) {
	if len(id.Names) == 0 {
		return ID{}, false
	}
	return ID{Module: id.Module, Names: append([]string(nil), id.Names[:len(id.Names)-1]...)}, true
}

// Child returns the ID of a node named name below id.
func (id ID) Child(name string) ID {
	names := make([]string, 0, len(id.Names)+1)
	names = append(names, id.Names...)
	return ID{Module: id.Module, Names: append(names, name)}
}

// IsAncestorOf reports whether id is a strict prefix of other. Source
// disambiguators are ignored on the ancestor side since suites never carry one.
func (id ID) IsAncestorOf(other ID) bool {
	if id.Module != other.Module || len(id.Names) >= len(other.Names) {
		return false
	}
	for i, n := range id.Names {
		if other.Names[i] != n {
			return false
		}
	}
	return true
}

// ParseID parses the String form of an ID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("empty test ID")
	}
	var source *SourceLocation
	if at := strings.LastIndex(s, "@"); at >= 0 {
		loc, err := parseSourceLocation(s[at+1:])
		if err != nil {
			return ID{}, fmt.Errorf("invalid source disambiguator in %q: %w", s, err)
		}
		source = &loc
		s = s[:at]
	}
	parts := strings.Split(s, idSeparator)
	for i, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("test ID %q has an empty component at index %d", s, i)
		}
	}
	return ID{Module: parts[0], Names: parts[1:], Source: source}, nil
}

func parseSourceLocation(s string) (SourceLocation, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return SourceLocation{}, fmt.Errorf("expected file:line[:column], got %q", s)
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil {
		return SourceLocation{}, fmt.Errorf("invalid line: %w", err)
	}
	loc := SourceLocation{File: parts[0], Line: line}
	if len(parts) == 3 {
		col, err := strconv.Atoi(parts[2])
		if err != nil {
			return SourceLocation{}, fmt.Errorf("invalid column: %w", err)
		}
		loc.Column = col
	}
	return loc, nil
}
