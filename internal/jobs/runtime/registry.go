package runtime

import (
	"fmt"
	"sort"
	"sync"
)

// Handler runs one training job type (sample extraction, clone training).
// Type() keys dispatch; Run reports outcomes through the job context
// rather than the returned error, which only exists as a safety net.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps voice_training_job.job_type to its handler. Registration
// happens once at startup; lookups run on every claimed job.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	jobType := h.Type()
	if jobType == "" {
		return fmt.Errorf("handler Type() is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists the registered job types in stable order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
