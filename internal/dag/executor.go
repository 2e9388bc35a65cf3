package dag

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a task in one execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Hooks receives task lifecycle notifications. Calls may arrive from
// different goroutines.
type Hooks interface {
	TaskStarted(name string)
	TaskFinished(name string, duration time.Duration, err error)
	TaskSkipped(name string)
}

// TaskResult is the record of a single task.
type TaskResult struct {
	Name     string
	Status   Status
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Report summarizes an execution.
type Report struct {
	// Order is the planned topological order.
	Order []string
	// Started lists tasks in the order they were started.
	Started []string
	Results map[string]*TaskResult
}

// Status returns the status of a task, or StatusPending when unknown.
func (r *Report) Status(name string) Status {
	if res, ok := r.Results[name]; ok {
		return res.Status
	}
	return StatusPending
}

// Failed returns failed tasks in planned order.
func (r *Report) Failed() []string { return r.withStatus(StatusFailed) }

// Skipped returns skipped tasks in planned order.
func (r *Report) Skipped() []string { return r.withStatus(StatusSkipped) }

// Succeeded returns succeeded tasks in planned order.
func (r *Report) Succeeded() []string { return r.withStatus(StatusSucceeded) }

func (r *Report) withStatus(s Status) []string {
	var out []string
	for _, n := range r.Order {
		if r.Status(n) == s {
			out = append(out, n)
		}
	}
	return out
}

type execOptions struct {
	concurrency int
	hooks       Hooks
}

// ExecOption configures Execute.
type ExecOption func(*execOptions)

// WithConcurrency bounds the number of tasks running at once. Values below
// one mean unbounded.
func WithConcurrency(n int) ExecOption {
	return func(o *execOptions) { o.concurrency = n }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) ExecOption {
	return func(o *execOptions) { o.hooks = h }
}

type taskDone struct {
	name     string
	err      error
	duration time.Duration
}

// Execute runs the graph. It returns the first task error, wrapped with the
// task name, or the context error when execution was interrupted. The report
// is always returned once the graph is valid.
func (g *Graph) Execute(ctx context.Context, opts ...ExecOption) (*Report, error) {
	o := execOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(order))
	for i, n := range order {
		position[n] = i
	}
	remaining := make(map[string]int, len(order))
	dependents := make(map[string][]string, len(order))
	for _, n := range order {
		for _, d := range g.tasks[n].DependsOn {
			remaining[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	report := &Report{Order: order, Results: make(map[string]*TaskResult, len(order))}
	for _, n := range order {
		report.Results[n] = &TaskResult{Name: n, Status: StatusPending}
	}

	var ready []string
	for _, n := range order {
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	var (
		eg       errgroup.Group
		results  = make(chan taskDone, len(order))
		inFlight int
		halted   bool
		mu       sync.Mutex
	)

	launch := func(name string) {
		task := g.tasks[name]
		mu.Lock()
		report.Started = append(report.Started, name)
		report.Results[name].Started = time.Now()
		mu.Unlock()
		if o.hooks != nil {
			o.hooks.TaskStarted(name)
		}
		inFlight++
		eg.Go(func() error {
			start := time.Now()
			err := runTask(ctx, task)
			results <- taskDone{name: name, err: err, duration: time.Since(start)}
			if err != nil {
				return fmt.Errorf("task %s: %w", name, err)
			}
			return nil
		})
	}

	fill := func() {
		for len(ready) > 0 && !halted {
			if ctx.Err() != nil {
				halted = true
				return
			}
			if o.concurrency > 0 && inFlight >= o.concurrency {
				return
			}
			next := ready[0]
			ready = ready[1:]
			launch(next)
		}
	}

	fill()
	for inFlight > 0 {
		done := <-results
		inFlight--

		res := report.Results[done.name]
		res.Duration = done.duration
		if done.err != nil {
			res.Status = StatusFailed
			res.Err = done.err
			halted = true
		} else {
			res.Status = StatusSucceeded
		}
		if o.hooks != nil {
			o.hooks.TaskFinished(done.name, done.duration, done.err)
		}

		if done.err == nil {
			for _, d := range dependents[done.name] {
				remaining[d]--
				if remaining[d] == 0 {
					pos, _ := slices.BinarySearchFunc(ready, d, func(a, b string) int {
						return position[a] - position[b]
					})
					ready = slices.Insert(ready, pos, d)
				}
			}
		}
		fill()
	}

	runErr := eg.Wait()

	skipped := false
	for _, n := range order {
		if res := report.Results[n]; res.Status == StatusPending {
			res.Status = StatusSkipped
			skipped = true
			if o.hooks != nil {
				o.hooks.TaskSkipped(n)
			}
		}
	}

	if runErr != nil {
		return report, runErr
	}
	if skipped && ctx.Err() != nil {
		return report, fmt.Errorf("execution interrupted: %w", ctx.Err())
	}
	return report, nil
}

func runTask(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}
