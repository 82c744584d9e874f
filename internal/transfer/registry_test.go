package transfer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferTaskState(t *testing.T) {
	task := NewTransferTask("t1", "share/a.zip", "/tmp/a.zip")
	assert.Equal(t, TaskRunning, task.GetState())
	assert.True(t, task.CompletedAt.IsZero())

	task.SetState(TaskCompleted)
	assert.Equal(t, TaskCompleted, task.GetState())
	assert.False(t, task.Clone().CompletedAt.IsZero())

	// terminal states are sticky
	task.SetState(TaskFailed)
	assert.Equal(t, TaskCompleted, task.GetState())
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	task, flag, err := r.Register("t1", "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.False(t, flag.IsSet())
	assert.True(t, r.Has("t1"))
	assert.Equal(t, 1, r.Len())

	_, _, err = r.Register("t1", "src", "dst")
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, _, err = r.Register("", "src", "dst")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	_, flag, err := r.Register("t1", "src", "dst")
	require.NoError(t, err)

	assert.True(t, r.Cancel("t1"))
	assert.True(t, flag.IsSet())

	// unknown id is a no-op, not an error
	assert.False(t, r.Cancel("nope"))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Register("t1", "src", "dst")
	require.NoError(t, err)

	r.Remove("t1")
	assert.False(t, r.Has("t1"))
	assert.False(t, r.Cancel("t1"))

	// id may be reused once removed
	_, _, err = r.Register("t1", "src", "dst")
	assert.NoError(t, err)
}

func TestRegistryShutdown(t *testing.T) {
	r := NewRegistry()
	var flags []*Flag
	for i := 0; i < 3; i++ {
		_, f, err := r.Register(fmt.Sprintf("t%d", i), "src", "dst")
		require.NoError(t, err)
		flags = append(flags, f)
	}

	r.Shutdown()

	for _, f := range flags {
		assert.True(t, f.IsSet())
	}
	assert.Equal(t, 0, r.Len())

	_, _, err := r.Register("late", "src", "dst")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistryActiveOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := r.Register(id, "src", "dst")
		require.NoError(t, err)
	}

	active := r.Active()
	require.Len(t, active, 3)
	for i := range active {
		assert.Equal(t, TaskRunning, active[i].State)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("t%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _, _ = r.Register(id, "src", "dst")
		}()
		go func() {
			defer wg.Done()
			r.Cancel(id)
		}()
		go func() {
			defer wg.Done()
			r.Remove(id)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 50)
}
