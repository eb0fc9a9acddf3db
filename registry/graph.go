package registry

import (
	"iter"

	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// Diagnostic explains why a record was skipped or adjusted while building
// the graph.
type Diagnostic struct {
	Record string
	Reason string
	Source types.SourceLocation
}

// Graph is the read-only test/suite tree. It is safe for concurrent reads
// once NewGraph returns.
type Graph struct {
	nodes       map[string]*types.Test
	children    map[string][]string
	roots       []string
	diagnostics []Diagnostic
}

// NewGraph builds a graph from discovery records. Malformed records are
// skipped with a diagnostic; missing ancestor suites are synthesised.
func NewGraph(records iter.Seq[Record], logger log.Logger) *Graph {
	if logger == nil {
		logger = log.New()
	}
	g := &Graph{
		nodes:    make(map[string]*types.Test),
		children: make(map[string][]string),
	}
	for rec := range records {
		g.add(rec, logger)
	}
	logger.Debug("Test graph built", "nodes", len(g.nodes), "diagnostics", len(g.diagnostics))
	return g
}

func (g *Graph) diagnose(logger log.Logger, rec Record, reason string) {
	logger.Warn("Skipping test record", "record", rec.String(), "reason", reason, "source", rec.Source.String())
	g.diagnostics = append(g.diagnostics, Diagnostic{Record: rec.String(), Reason: reason, Source: rec.Source})
}

func (g *Graph) add(rec Record, logger log.Logger) {
	node, err := rec.node()
	if err != nil {
		g.diagnose(logger, rec, err.Error())
		return
	}

	kept, rejected := types.FilterApplicable(node, node.Traits)
	for _, tr := range rejected {
		logger.Warn("Dropping inapplicable trait", "node", node.ID.String(), "trait", types.DescribeTrait(tr))
		g.diagnostics = append(g.diagnostics, Diagnostic{
			Record: rec.String(),
			Reason: "trait " + types.DescribeTrait(tr) + " does not apply to a " + rec.Kind.String(),
			Source: rec.Source,
		})
	}
	node.Traits = kept

	key := node.ID.Key()
	if existing, ok := g.nodes[key]; ok {
		switch {
		case existing.Implicit && node.IsSuite():
			// an explicit suite replaces the placeholder and keeps its children
			g.nodes[key] = node
			return
		case !node.IsSuite() && !rec.Source.IsZero():
			src := rec.Source
			node.ID.Source = &src
			key = node.ID.Key()
			if _, dup := g.nodes[key]; dup {
				g.diagnose(logger, rec, "duplicate test ID at the same source location")
				return
			}
		default:
			g.diagnose(logger, rec, "duplicate ID "+key)
			return
		}
	}

	if parentID, ok := node.ID.Parent(); ok && len(parentID.Names) > 0 {
		if reason := g.testAncestor(parentID); reason != "" {
			g.diagnose(logger, rec, reason)
			return
		}
		g.ensureSuite(parentID)
		g.children[parentID.Key()] = append(g.children[parentID.Key()], key)
	} else {
		g.roots = append(g.roots, key)
	}
	g.nodes[key] = node
}

// testAncestor walks from parent up to the root and describes the first
// existing node that is a test, or returns "" when every existing ancestor
// is a suite.
func (g *Graph) testAncestor(parent types.ID) string {
	role := "parent"
	for id, ok := parent, true; ok && len(id.Names) > 0; id, ok = id.Parent() {
		if n, exists := g.nodes[id.Key()]; exists && !n.IsSuite() {
			return role + " " + id.String() + " is a test"
		}
		role = "ancestor"
	}
	return ""
}

// ensureSuite returns the node for id, creating implicit suites up to the
// root as needed.
func (g *Graph) ensureSuite(id types.ID) *types.Test {
	key := id.Key()
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &types.Test{ID: id, Implicit: true}
	g.nodes[key] = n
	if parentID, ok := id.Parent(); ok && len(parentID.Names) > 0 {
		g.ensureSuite(parentID)
		g.children[parentID.Key()] = append(g.children[parentID.Key()], key)
	} else {
		g.roots = append(g.roots, key)
	}
	return n
}

// Len is the number of nodes, implicit suites included.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Get looks up a node by ID.
func (g *Graph) Get(id types.ID) (*types.Test, bool) {
	n, ok := g.nodes[id.Key()]
	return n, ok
}

// Roots returns the top-level nodes in discovery order.
func (g *Graph) Roots() []*types.Test {
	return g.resolve(g.roots)
}

// Children returns the direct children of id in discovery order.
func (g *Graph) Children(id types.ID) []*types.Test {
	return g.resolve(g.children[id.Key()])
}

func (g *Graph) resolve(keys []string) []*types.Test {
	out := make([]*types.Test, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.nodes[k])
	}
	return out
}

// Ancestors returns the suites enclosing id, outermost first.
func (g *Graph) Ancestors(id types.ID) []*types.Test {
	var chain []*types.Test
	for p, ok := id.Parent(); ok && len(p.Names) > 0; p, ok = p.Parent() {
		if n, found := g.nodes[p.Key()]; found {
			chain = append(chain, n)
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Walk visits every node depth-first in discovery order. Returning false
// from fn skips the node's descendants.
func (g *Graph) Walk(fn func(node *types.Test, depth int) bool) {
	var visit func(keys []string, depth int)
	visit = func(keys []string, depth int) {
		for _, k := range keys {
			n := g.nodes[k]
			if fn(n, depth) {
				visit(g.children[k], depth+1)
			}
		}
	}
	visit(g.roots, 0)
}

// All yields every node depth-first.
func (g *Graph) All() iter.Seq[*types.Test] {
	return func(yield func(*types.Test) bool) {
		stopped := false
		g.Walk(func(n *types.Test, _ int) bool {
			if stopped {
				return false
			}
			if !yield(n) {
				stopped = true
				return false
			}
			return true
		})
	}
}

// Diagnostics returns the problems found while building the graph.
func (g *Graph) Diagnostics() []Diagnostic {
	return g.diagnostics
}
