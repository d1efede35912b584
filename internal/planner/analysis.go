package planner

import "sort"

type Summary struct {
	TotalResources int            `json:"total_resources"`
	ByType         map[string]int `json:"by_type"`
	ByClass        map[string]int `json:"by_class"`
	Classes        []string       `json:"classes"`
	MaxOrder       int            `json:"max_order"`
	Edges          int            `json:"edges"`
}

func Summarize(p *Plan) Summary {
	s := Summary{
		ByType:  map[string]int{},
		ByClass: map[string]int{},
	}
	if p == nil {
		return s
	}
	for _, step := range p.Steps {
		s.TotalResources++
		s.ByType[step.Resource.Type]++
		s.ByClass[step.Class]++
		if step.Order > s.MaxOrder {
			s.MaxOrder = step.Order
		}
		s.Edges += len(Edges(step.Resource))
	}
	s.Classes = make([]string, 0, len(s.ByClass))
	for c := range s.ByClass {
		s.Classes = append(s.Classes, c)
	}
	sort.Strings(s.Classes)
	return s
}
