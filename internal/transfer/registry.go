package transfer

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrDuplicateID is returned when a transfer id is already registered.
	ErrDuplicateID = errors.New("transfer id already registered")
	// ErrRegistryClosed is returned by Register after Shutdown.
	ErrRegistryClosed = errors.New("transfer registry is shut down")
	// ErrEmptyID is returned for an empty transfer id.
	ErrEmptyID = errors.New("transfer id is required")
)

type entry struct {
	task *TransferTask
	flag *Flag
}

// Registry maps transfer ids to their task and cancellation flag.
//
// Entries are inserted when a download starts and removed when it reaches a
// terminal state. The registry is the only state shared between callers and
// workers; callers never hold its lock.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a running task under id and returns it with its flag.
func (r *Registry) Register(id, source, dest string) (*TransferTask, *Flag, error) {
	if id == "" {
		return nil, nil, ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, ErrRegistryClosed
	}
	if _, exists := r.entries[id]; exists {
		return nil, nil, ErrDuplicateID
	}

	e := entry{task: NewTransferTask(id, source, dest), flag: &Flag{}}
	r.entries[id] = e
	return e.task, e.flag, nil
}

// Cancel raises the flag for id. Unknown ids are a no-op; the return value
// reports whether a flag was found.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.flag.Set()
	return true
}

// Remove drops id from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered transfers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Active returns snapshots of all registered tasks ordered by creation time.
func (r *Registry) Active() []TransferTask {
	r.mu.Lock()
	tasks := make([]TransferTask, 0, len(r.entries))
	for _, e := range r.entries {
		tasks = append(tasks, e.task.Clone())
	}
	r.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Shutdown raises every outstanding flag and clears the registry so
// in-flight transfers abort cooperatively. Later Register calls fail.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		e.flag.Set()
		delete(r.entries, id)
	}
	r.closed = true
}
