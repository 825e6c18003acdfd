package core

import "smartloan/pkg/domain"

// CategoryGroup lists the parameters of one display category.
type CategoryGroup struct {
	Category   string             `json:"category"`
	Parameters []domain.Parameter `json:"parameters"`
}

// GroupByCategory groups params by category, preserving the order in which
// categories and parameters first appear.
func GroupByCategory(params []domain.Parameter) []CategoryGroup {
	var out []CategoryGroup
	index := make(map[string]int)
	for _, p := range params {
		i, ok := index[p.Category]
		if !ok {
			i = len(out)
			index[p.Category] = i
			out = append(out, CategoryGroup{Category: p.Category})
		}
		out[i].Parameters = append(out[i].Parameters, p)
	}
	return out
}
