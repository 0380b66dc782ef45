package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/studioforge/media-platform/internal/queue"
)

// Engine is the narrow contract over an external generation backend. It gets
// the job payload and returns a reference to the produced artifact; latency is
// bounded but variable, so implementations must honor ctx.
type Engine interface {
	Execute(ctx context.Context, job *queue.Job) (resultRef string, err error)
}

// Registry routes jobs to engines by kind.
type Registry struct {
	mu      sync.RWMutex
	engines map[queue.JobKind]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[queue.JobKind]Engine)}
}

func (r *Registry) Register(kind queue.JobKind, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[kind] = e
}

func (r *Registry) Get(kind queue.JobKind) (Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no engine for job kind %q", kind)
	}
	return e, nil
}
