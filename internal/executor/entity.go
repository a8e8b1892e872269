package executor

import "slices"

// Executor is a team member who can be assigned tasks.
type Executor struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	Role               string   `json:"role" yaml:"role"`
	Skills             []string `json:"skills" yaml:"skills"`
	CurrentTaskIDs     []string `json:"currentTaskIds" yaml:"current_task_ids"`
	MaxConcurrentTasks int      `json:"maxConcurrentTasks" yaml:"max_concurrent_tasks"`
}

func (e *Executor) Load() int {
	return len(e.CurrentTaskIDs)
}

// HasCapacity reports whether one more task fits under MaxConcurrentTasks.
func (e *Executor) HasCapacity() bool {
	return e.Load() < e.MaxConcurrentTasks
}

func (e *Executor) HasSkill(skill string) bool {
	return slices.Contains(e.Skills, skill)
}

// AddTask records taskID as active. It returns false if it was already present.
func (e *Executor) AddTask(taskID string) bool {
	if slices.Contains(e.CurrentTaskIDs, taskID) {
		return false
	}
	e.CurrentTaskIDs = append(e.CurrentTaskIDs, taskID)
	return true
}

// RemoveTask drops taskID. It returns false if it was not present.
func (e *Executor) RemoveTask(taskID string) bool {
	i := slices.Index(e.CurrentTaskIDs, taskID)
	if i < 0 {
		return false
	}
	e.CurrentTaskIDs = slices.Delete(e.CurrentTaskIDs, i, i+1)
	return true
}
