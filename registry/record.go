package registry

import (
	"fmt"
	"iter"
	"runtime"
	"slices"
	"sync"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// RecordKind tells whether a record describes a test or a suite.
type RecordKind uint8

const (
	KindTest RecordKind = iota
	KindSuite
)

func (k RecordKind) String() string {
	if k == KindSuite {
		return "suite"
	}
	return "test"
}

// Record is the raw description of one test or suite as produced by
// discovery. Records are validated when the graph is built.
type Record struct {
	Kind        RecordKind
	Module      string
	Names       []string
	DisplayName string
	Traits      []types.Trait
	Parameters  []types.Parameter
	Arguments   []types.ArgumentCollection
	Body        types.Body
	Source      types.SourceLocation
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s", r.Kind, types.NewID(r.Module, r.Names...))
}

// node converts the record into a graph node, or explains why it cannot.
func (r Record) node() (*types.Test, error) {
	switch r.Kind {
	case KindSuite:
		if r.Body != nil {
			return nil, fmt.Errorf("suite record has a body")
		}
	case KindTest:
		if r.Body == nil {
			return nil, fmt.Errorf("test record has no body")
		}
	default:
		return nil, fmt.Errorf("unknown record kind %d", r.Kind)
	}
	t := &types.Test{
		ID:          types.NewID(r.Module, r.Names...),
		DisplayName: r.DisplayName,
		Parameters:  slices.Clone(r.Parameters),
		Arguments:   slices.Clone(r.Arguments),
		Traits:      slices.Clone(r.Traits),
		Body:        r.Body,
		Source:      r.Source,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

var (
	registeredMu sync.Mutex
	registered   []Record
)

// Register adds a record to the process-wide discovery list. Test bundles
// call it from init functions.
func Register(r Record) {
	register(r)
}

func register(r Record) {
	if r.Source.IsZero() {
		// register <- Register* <- caller
		if _, file, line, ok := runtime.Caller(2); ok {
			r.Source = types.SourceLocation{File: file, Line: line}
		}
	}
	registeredMu.Lock()
	defer registeredMu.Unlock()
	registered = append(registered, r)
}

// RegisterSuite registers a suite at module/names.
func RegisterSuite(module string, names []string, traits ...types.Trait) {
	register(Record{Kind: KindSuite, Module: module, Names: names, Traits: traits})
}

// RegisterTest registers a non-parameterized test at module/names.
func RegisterTest(module string, names []string, body func(t *types.T) error, traits ...types.Trait) {
	register(Record{
		Kind:   KindTest,
		Module: module,
		Names:  names,
		Traits: traits,
		Body:   func(t *types.T, _ []any) error { return body(t) },
	})
}

// Discover returns the registered records in registration order. The
// sequence reads a snapshot taken when iteration starts.
func Discover() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		registeredMu.Lock()
		snapshot := slices.Clone(registered)
		registeredMu.Unlock()
		for _, r := range snapshot {
			if !yield(r) {
				return
			}
		}
	}
}
