package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
)

// Tree connectors, box drawing characters
const (
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeContinue   = "│   "
	treeIndent     = "    "
)

// treePrefix builds the connector for a node at depth. parentIsLast holds,
// for every ancestor below the root, whether it was the last of its siblings.
func treePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			b.WriteString(treeIndent)
		} else {
			b.WriteString(treeContinue)
		}
	}
	if isLast {
		b.WriteString(treeLastBranch)
	} else {
		b.WriteString(treeBranch)
	}
	return b.String()
}

// RenderPlanTree writes the planned hierarchy without running anything.
// Roots are shown by full ID, nested nodes by name.
func RenderPlanTree(w io.Writer, p *plan.Plan) error {
	for _, root := range p.Roots {
		if err := renderStep(w, root, 0, true, nil); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d test(s) planned\n", p.TestCount())
	return err
}

func renderStep(w io.Writer, s *plan.Step, depth int, isLast bool, parentIsLast []bool) error {
	label := s.Test.Name()
	if depth == 0 {
		label = s.Test.ID.String()
	}
	if _, err := fmt.Fprintf(w, "%s%s%s\n", treePrefix(depth, isLast, parentIsLast), label, annotations(s)); err != nil {
		return err
	}
	var ancestors []bool
	if depth > 0 {
		ancestors = append(append(ancestors, parentIsLast...), isLast)
	}
	for i, child := range s.Children {
		if err := renderStep(w, child, depth+1, i == len(s.Children)-1, ancestors); err != nil {
			return err
		}
	}
	return nil
}

func annotations(s *plan.Step) string {
	var parts []string
	if s.Test.IsParameterized() {
		params := make([]string, len(s.Test.Parameters))
		for i, p := range s.Test.Parameters {
			params[i] = p.Name + " " + p.TypeName()
		}
		parts = append(parts, "("+strings.Join(params, ", ")+")")
	}
	if s.Serialized && s.IsSuite() {
		parts = append(parts, "[serialized]")
	}
	if tags := s.Test.Tags(); len(tags) > 0 {
		parts = append(parts, "#"+strings.Join(tags, " #"))
	}
	if s.Action == plan.ActionSkip {
		reason := "disabled"
		if s.Skip != nil && s.Skip.Reason != "" {
			reason = s.Skip.Reason
		}
		parts = append(parts, "[skip: "+reason+"]")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
