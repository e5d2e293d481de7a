package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	lock      sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register installs the executor for tag.
func (r *Registry) Register(tag string, executor Executor) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.executors[tag]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateExecutor, tag)
	}

	r.executors[tag] = executor

	return nil
}

// Dispatch runs cmd on the executor registered for its tag. If there is
// none, an *UnknownCommandError is returned without running anything.
func (r *Registry) Dispatch(ctx context.Context, cmd Command) (any, error) {
	r.lock.RLock()
	executor, ok := r.executors[cmd.Tag]
	r.lock.RUnlock()

	if !ok {
		return nil, &UnknownCommandError{Tag: cmd.Tag}
	}

	return executor.Execute(ctx, cmd)
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	tags := make([]string, 0, len(r.executors))
	for tag := range r.executors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}
