package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/masterchef/catalogcheck/internal/config"
)

type Plan struct {
	Steps []Step `json:"steps"`
}

type Step struct {
	Order    int             `json:"order"`
	Class    string          `json:"class,omitempty"`
	Resource config.Resource `json:"resource"`
}

// Edge is an ordering constraint: From is applied before To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CycleError reports the resources left unordered by a dependency cycle.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in resource dependency graph among %s", strings.Join(e.Remaining, ", "))
}

// Edges returns the ordering constraints a resource declares. depends_on,
// require and subscribe point at upstream resources; before and notify at
// downstream ones.
func Edges(r config.Resource) []Edge {
	out := make([]Edge, 0)
	deps := append([]string{}, r.DependsOn...)
	deps = append(deps, r.Require...)
	deps = append(deps, r.Subscribe...)
	for _, dep := range deps {
		out = append(out, Edge{From: dep, To: r.ID})
	}
	targets := append([]string{}, r.Before...)
	targets = append(targets, r.Notify...)
	for _, target := range targets {
		out = append(out, Edge{From: r.ID, To: target})
	}
	return out
}

// Build constructs a deterministic topological order over resources. All
// relationship references must already be resource ids.
func Build(resources []config.Resource) (*Plan, error) {
	idToRes := map[string]config.Resource{}
	inDegree := map[string]int{}
	graph := map[string][]string{}

	for _, r := range resources {
		idToRes[r.ID] = r
		inDegree[r.ID] = 0
	}

	edgeSet := map[string]struct{}{}
	addEdge := func(from, to string) {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return
		}
		key := from + "->" + to
		if _, exists := edgeSet[key]; exists {
			return
		}
		edgeSet[key] = struct{}{}
		graph[from] = append(graph[from], to)
		inDegree[to]++
	}
	for _, r := range resources {
		for _, e := range Edges(r) {
			addEdge(e.From, e.To)
		}
	}

	queue := make([]string, 0)
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	ordered := make([]string, 0, len(resources))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ordered = append(ordered, cur)

		children := graph[cur]
		sort.Strings(children)
		for _, c := range children {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
		sort.Strings(queue)
	}

	if len(ordered) != len(idToRes) {
		remaining := make([]string, 0)
		for id, d := range inDegree {
			if d > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	steps := make([]Step, 0, len(ordered))
	for i, id := range ordered {
		steps = append(steps, Step{
			Order:    i + 1,
			Resource: idToRes[id],
		})
	}
	return &Plan{Steps: steps}, nil
}
