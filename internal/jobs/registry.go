package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	errCancelled = errors.New("job cancelled")
	errShutdown  = errors.New("interrupted by shutdown")
)

// Registry tracks the workers running in this process. Each registered job gets a
// context that ends when the job is cancelled or the registry is closed; the cause
// tells the two apart. The cancelled set is a fast path only: the persisted status
// stays authoritative.
type Registry struct {
	mu        sync.Mutex
	root      context.Context
	stop      context.CancelCauseFunc
	running   map[uuid.UUID]context.CancelCauseFunc
	cancelled map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	root, stop := context.WithCancelCause(context.Background())
	return &Registry{
		root:      root,
		stop:      stop,
		running:   make(map[uuid.UUID]context.CancelCauseFunc),
		cancelled: make(map[uuid.UUID]struct{}),
	}
}

// Register returns the worker context for id and a release func that drops every
// trace of the job.
func (r *Registry) Register(id uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(r.root)

	r.mu.Lock()
	r.running[id] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.running, id)
		delete(r.cancelled, id)
		r.mu.Unlock()
		cancel(nil)
	}
	return ctx, release
}

// MarkCancelled records id as cancelled and stops its worker context. It reports
// whether a worker for id is registered here.
func (r *Registry) MarkCancelled(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.running[id]
	if !ok {
		return false
	}
	r.cancelled[id] = struct{}{}
	cancel(errCancelled)
	return true
}

func (r *Registry) IsCancelled(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancelled[id]
	return ok
}

// Running is the number of registered workers.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Close ends every worker context with the shutdown cause. Contexts registered
// afterwards are done from the start.
func (r *Registry) Close() {
	r.stop(errShutdown)
}

// shutdownRequested reports whether ctx ended because the registry closed.
func shutdownRequested(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errShutdown)
}
