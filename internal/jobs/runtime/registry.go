package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnnamedHandler   = errors.New("job handler has no type")
	ErrHandlerDuplicate = errors.New("job type already has a handler")
)

// Handler runs one job type. Run reports the outcome through ctx; a returned
// error fails the job at the "run" stage.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job_type values to handlers. It is filled at startup and
// read by every worker loop.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{byType: map[string]Handler{}}
}

func (r *Registry) Register(h Handler) error {
	if h == nil || h.Type() == "" {
		return ErrUnnamedHandler
	}
	jobType := h.Type()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byType[jobType]; taken {
		return fmt.Errorf("%w: %s", ErrHandlerDuplicate, jobType)
	}
	r.byType[jobType] = h
	return nil
}

func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.byType[jobType]
	r.mu.RUnlock()
	return h, ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.byType))
	for jobType := range r.byType {
		types = append(types, jobType)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
