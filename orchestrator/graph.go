package orchestrator

import (
	"sort"

	"github.com/c360/smoothsail/errors"
)

type node struct {
	id       string
	priority int
	deps     []string
}

// startupOrder returns a topological order of nodes. Roots and each node's
// dependencies are visited by ascending priority, then id, so the same
// declarations always give the same order.
func startupOrder(nodes map[string]node) ([]string, error) {
	byPriority := func(ids []string) []string {
		sorted := append([]string(nil), ids...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := nodes[sorted[i]], nodes[sorted[j]]
			if a.priority != b.priority {
				return a.priority < b.priority
			}
			return sorted[i] < sorted[j]
		})
		return sorted
	}

	// Missing dependencies are reported before any cycle.
	for _, id := range sortedIDs(nodes) {
		for _, dep := range nodes[id].deps {
			if _, ok := nodes[dep]; !ok {
				return nil, &errors.MissingDependencyError{Component: id, Dependency: dep}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return errors.NewCircularDependency(path, id)
		}
		state[id] = visiting
		path = append(path, id)

		for _, dep := range byPriority(nodes[id].deps) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[id] = visited
		order = append(order, id)
		return nil
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	for _, id := range byPriority(ids) {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortedIDs(nodes map[string]node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
