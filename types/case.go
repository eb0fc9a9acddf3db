package types

import (
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-testengine/argid"
)

// Argument binds one value to the parameter it was produced for. Its
// identity is resolved once, when the case is built.
type Argument struct {
	Value     any
	Parameter Parameter
	ID        argid.ID
}

// CaseID identifies a case within its test. A stable ID lists the argument
// identities; an unstable ID replaces all of them with a per-run
// discriminator.
type CaseID struct {
	ArgumentIDs   []argid.ID
	Discriminator int
	Stable        bool
}

// IsEmpty reports whether the ID belongs to the single case of a
// non-parameterized test.
func (id CaseID) IsEmpty() bool {
	return id.Stable && len(id.ArgumentIDs) == 0
}

// String renders "(a, b)" for stable IDs and "~n" for unstable ones.
func (id CaseID) String() string {
	if !id.Stable {
		return "~" + strconv.Itoa(id.Discriminator)
	}
	if len(id.ArgumentIDs) == 0 {
		return ""
	}
	parts := make([]string, len(id.ArgumentIDs))
	for i, a := range id.ArgumentIDs {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Equal compares two case IDs.
func (id CaseID) Equal(other CaseID) bool {
	if id.Stable != other.Stable {
		return false
	}
	if !id.Stable {
		return id.Discriminator == other.Discriminator
	}
	if len(id.ArgumentIDs) != len(other.ArgumentIDs) {
		return false
	}
	for i := range id.ArgumentIDs {
		if !id.ArgumentIDs[i].Equal(other.ArgumentIDs[i]) {
			return false
		}
	}
	return true
}

// Case is one concrete invocation of a test.
type Case struct {
	Arguments []Argument
	ID        CaseID
	// Ordinal is the position of the case in expansion order.
	Ordinal int
}

// NewCase binds values to params and derives the case identifier. ordinal
// becomes the discriminator when any argument lacks a stable identity.
func NewCase(params []Parameter, values []any, ordinal int) *Case {
	c := &Case{
		Arguments: make([]Argument, len(values)),
		Ordinal:   ordinal,
	}
	stable := true
	for i, v := range values {
		var p Parameter
		if i < len(params) {
			p = params[i]
		}
		id := argid.Of(v)
		stable = stable && id.Stable
		c.Arguments[i] = Argument{Value: v, Parameter: p, ID: id}
	}
	if stable {
		ids := make([]argid.ID, len(c.Arguments))
		for i, a := range c.Arguments {
			ids[i] = a.ID
		}
		c.ID = CaseID{ArgumentIDs: ids, Stable: true}
	} else {
		c.ID = CaseID{Discriminator: ordinal}
	}
	return c
}

// Values returns the bound argument values in parameter order.
func (c *Case) Values() []any {
	out := make([]any, len(c.Arguments))
	for i, a := range c.Arguments {
		out[i] = a.Value
	}
	return out
}

// Describe renders the arguments for humans, e.g. "x: 1, name: \"a\"".
func (c *Case) Describe() string {
	parts := make([]string, len(c.Arguments))
	for i, a := range c.Arguments {
		desc := argid.Describe(a.Value)
		if a.Parameter.Name != "" {
			desc = a.Parameter.Name + ": " + desc
		}
		parts[i] = desc
	}
	return strings.Join(parts, ", ")
}
