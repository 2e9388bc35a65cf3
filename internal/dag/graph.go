package dag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is returned when the dependency edges form a loop.
var ErrCycle = errors.New("dependency cycle")

// TaskFunc performs one unit of work.
type TaskFunc func(ctx context.Context) error

// Task is a named node of the graph.
type Task struct {
	Name      string
	DependsOn []string
	Run       TaskFunc
}

// Graph is an ordered set of tasks and their dependency edges.
type Graph struct {
	tasks map[string]*Task
	names []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// Add registers a task. Names must be unique.
func (g *Graph) Add(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if _, exists := g.tasks[t.Name]; exists {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("task %q has no run function", t.Name)
	}
	t.DependsOn = slices.Clone(t.DependsOn)
	g.tasks[t.Name] = &t
	g.names = append(g.names, t.Name)
	return nil
}

// Has reports whether a task is registered.
func (g *Graph) Has(name string) bool {
	_, ok := g.tasks[name]
	return ok
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.names) }

// Tasks returns the task names in insertion order.
func (g *Graph) Tasks() []string { return slices.Clone(g.names) }

// Dependencies returns the direct dependencies of a task.
func (g *Graph) Dependencies(name string) []string {
	t, ok := g.tasks[name]
	if !ok {
		return nil
	}
	return slices.Clone(t.DependsOn)
}

// AddEdge makes name depend on dep.
func (g *Graph) AddEdge(name, dep string) error {
	t, ok := g.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	if !slices.Contains(t.DependsOn, dep) {
		t.DependsOn = append(t.DependsOn, dep)
	}
	return nil
}

// RemoveEdge drops the dependency of name on dep.
func (g *Graph) RemoveEdge(name, dep string) error {
	t, ok := g.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	t.DependsOn = slices.DeleteFunc(t.DependsOn, func(d string) bool { return d == dep })
	return nil
}

// Remove deletes a task together with every edge pointing at it.
func (g *Graph) Remove(name string) error {
	if _, ok := g.tasks[name]; !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	delete(g.tasks, name)
	g.names = slices.DeleteFunc(g.names, func(n string) bool { return n == name })
	for _, t := range g.tasks {
		t.DependsOn = slices.DeleteFunc(t.DependsOn, func(d string) bool { return d == name })
	}
	return nil
}

// Order returns a topological order. Among tasks that are ready at the same
// time, the one added first comes first, so the order is stable.
func (g *Graph) Order() ([]string, error) {
	index := make(map[string]int, len(g.names))
	for i, n := range g.names {
		index[n] = i
	}

	remaining := make(map[string]int, len(g.names))
	dependents := make(map[string][]string, len(g.names))
	for _, n := range g.names {
		for _, d := range g.tasks[n].DependsOn {
			if _, ok := g.tasks[d]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", n, d)
			}
			if d == n {
				return nil, fmt.Errorf("%w: task %q depends on itself", ErrCycle, n)
			}
			remaining[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	var ready []string
	for _, n := range g.names {
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = insertByIndex(ready, dep, index)
			}
		}
	}

	if len(order) != len(g.names) {
		var stuck []string
		for _, n := range g.names {
			if remaining[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, fmt.Errorf("%w between %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

func insertByIndex(queue []string, name string, index map[string]int) []string {
	pos, _ := slices.BinarySearchFunc(queue, name, func(a, b string) int {
		return index[a] - index[b]
	})
	return slices.Insert(queue, pos, name)
}
