package deploy

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/dimo-network/k3sform/internal/dag"
)

// Order returns releases in dependency order, using the same ordering as
// the apply graph.
func Order(releases []Release) ([]Release, error) {
	g := dag.New()
	byName := make(map[string]Release, len(releases))
	noop := func(context.Context) error { return nil }
	for _, r := range releases {
		byName[r.Name] = r
	}
	for _, r := range releases {
		var deps []string
		for _, dep := range r.DependsOn {
			if _, ok := byName[dep]; ok {
				deps = append(deps, dep)
			}
		}
		if err := g.Add(dag.Task{Name: r.Name, DependsOn: deps, Run: noop}); err != nil {
			return nil, err
		}
	}
	names, err := g.Order()
	if err != nil {
		return nil, err
	}
	out := make([]Release, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n])
	}
	return out, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}

type resultSet struct {
	mu      sync.Mutex
	actions map[string]string
}

func newResultSet() *resultSet {
	return &resultSet{actions: map[string]string{}}
}

func (s *resultSet) set(name, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[name] = action
}

func (s *resultSet) snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.actions)
}
