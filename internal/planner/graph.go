package planner

import (
	"fmt"
	"sort"
	"strings"
)

func ToDOT(p *Plan) string {
	var b strings.Builder
	b.WriteString("digraph catalog {\n")
	b.WriteString("  rankdir=LR;\n")

	ids := make([]string, 0, len(p.Steps))
	stepByID := map[string]Step{}
	for _, s := range p.Steps {
		ids = append(ids, s.Resource.ID)
		stepByID[s.Resource.ID] = s
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := stepByID[id]
		label := fmt.Sprintf("%s\\n(type=%s class=%s order=%d)", id, s.Resource.Type, s.Class, s.Order)
		b.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\"];\n", id, label))
	}

	edges := make([]string, 0)
	seen := map[string]struct{}{}
	for _, id := range ids {
		for _, e := range Edges(stepByID[id].Resource) {
			line := fmt.Sprintf("  \"%s\" -> \"%s\";\n", e.From, e.To)
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			edges = append(edges, line)
		}
	}
	sort.Strings(edges)
	for _, line := range edges {
		b.WriteString(line)
	}

	b.WriteString("}\n")
	return b.String()
}
