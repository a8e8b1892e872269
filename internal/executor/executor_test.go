package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutor_Capacity(t *testing.T) {
	e := &Executor{ID: "jordan", MaxConcurrentTasks: 2}
	assert.True(t, e.HasCapacity())

	assert.True(t, e.AddTask("t1"))
	assert.False(t, e.AddTask("t1"))
	assert.True(t, e.AddTask("t2"))
	assert.Equal(t, 2, e.Load())
	assert.False(t, e.HasCapacity())

	assert.True(t, e.RemoveTask("t1"))
	assert.False(t, e.RemoveTask("t1"))
	assert.Equal(t, []string{"t2"}, e.CurrentTaskIDs)
	assert.True(t, e.HasCapacity())
}
