package dag

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyResolved is returned when a future is assigned twice.
	ErrAlreadyResolved = errors.New("future already resolved")

	// ErrUnresolved is returned by Get before the producer has finished.
	ErrUnresolved = errors.New("future not resolved yet")
)

// Future is a value that is assigned exactly once by its producing task.
type Future[T any] struct {
	name string
	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	value T
	err   error
}

// NewFuture returns an unresolved future. The name appears in errors.
func NewFuture[T any](name string) *Future[T] {
	return &Future[T]{name: name, done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](name string, v T) *Future[T] {
	f := NewFuture[T](name)
	_ = f.Resolve(v)
	return f
}

// Name returns the future's name.
func (f *Future[T]) Name() string { return f.name }

// Resolve assigns the value.
func (f *Future[T]) Resolve(v T) error {
	return f.settle(v, nil)
}

// Reject settles the future with an error that every reader receives.
func (f *Future[T]) Reject(err error) error {
	if err == nil {
		err = fmt.Errorf("%s rejected without a reason", f.name)
	}
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) error {
	settled := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value, f.err = v, err
		f.mu.Unlock()
		close(f.done)
		settled = true
	})
	if !settled {
		return fmt.Errorf("%s: %w", f.name, ErrAlreadyResolved)
	}
	return nil
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future is settled or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.load()
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("waiting for %s: %w", f.name, ctx.Err())
	}
}

// Get returns the value without blocking. Reading a future whose producer
// has not finished is a wiring error and returns ErrUnresolved.
func (f *Future[T]) Get() (T, error) {
	select {
	case <-f.done:
		return f.load()
	default:
		var zero T
		return zero, fmt.Errorf("%s: %w", f.name, ErrUnresolved)
	}
}

// MustGet is Get for tasks that declare a dependency on the producer.
func (f *Future[T]) MustGet() T {
	v, err := f.Get()
	if err != nil {
		panic(err)
	}
	return v
}

func (f *Future[T]) load() (T, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.err
}
