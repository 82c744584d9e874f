// Package transfer tracks in-flight downloads and their cancellation flags.
package transfer

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Flag is a cooperative cancellation flag. The worker polls it between
// chunk reads; callers set it. Safe for concurrent use.
type Flag struct {
	set atomic.Bool
}

// Set raises the flag. Setting it twice is harmless.
func (f *Flag) Set() { f.set.Store(true) }

// IsSet reports whether the flag was raised.
func (f *Flag) IsSet() bool { return f.set.Load() }

// TransferTask represents a single download registered with the Registry.
// Thread-safe: Use the provided methods to update state.
type TransferTask struct {
	ID     string // Caller-supplied, unique among registered tasks
	Source string // Remote descriptor (share + path)
	Dest   string // Local output path

	State       TaskState
	CreatedAt   time.Time
	CompletedAt time.Time

	mu sync.RWMutex
}

// NewTransferTask creates a task in the running state.
func NewTransferTask(id, source, dest string) *TransferTask {
	return &TransferTask{
		ID:        id,
		Source:    source,
		Dest:      dest,
		State:     TaskRunning,
		CreatedAt: time.Now(),
	}
}

// GetState returns the current state (thread-safe).
func (t *TransferTask) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe). Terminal states are sticky.
func (t *TransferTask) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State.IsTerminal() {
		return
	}
	t.State = state
	if state.IsTerminal() {
		t.CompletedAt = time.Now()
	}
}

// Clone returns a copy of the task (for safe external use).
func (t *TransferTask) Clone() TransferTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransferTask{
		ID:          t.ID,
		Source:      t.Source,
		Dest:        t.Dest,
		State:       t.State,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}
