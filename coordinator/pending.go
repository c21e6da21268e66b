package coordinator

import "context"

// Pending is the eventual result of a mutation started with Go.
type Pending[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on its own goroutine. The context handed to fn keeps ctx's values
// but not its cancellation: a request already sent is always reconciled.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Pending[T] {
	p := &Pending[T]{done: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(p.done)
		p.val, p.err = fn(detached)
	}()
	return p
}

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the result is available or ctx ends. Giving up on the wait
// does not stop the mutation.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Deferred returns an unresolved Pending and the func that resolves it. The
// resolve func must be called exactly once.
func Deferred[T any]() (*Pending[T], func(T, error)) {
	p := &Pending[T]{done: make(chan struct{})}
	return p, func(v T, err error) {
		p.val, p.err = v, err
		close(p.done)
	}
}
