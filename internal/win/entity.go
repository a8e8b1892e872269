package win

import (
	"time"

	"github.com/kazz187/dispatch/internal/task"
)

const (
	AIName = "AI"
	AIRole = "Assistant"
)

// Win is the shared completion record shown in the team feed.
type Win struct {
	TaskID          string         `json:"taskId" yaml:"task_id"`
	TaskTitle       string         `json:"taskTitle" yaml:"task_title"`
	CompletedByID   string         `json:"completedById,omitempty" yaml:"completed_by_id,omitempty"`
	CompletedByName string         `json:"completedByName" yaml:"completed_by_name"`
	CompletedByRole string         `json:"completedByRole" yaml:"completed_by_role"`
	ExecutionTier   task.Tier      `json:"executionTier" yaml:"execution_tier"`
	CompletedAt     time.Time      `json:"completedAt" yaml:"completed_at"`
	Feedback        *task.Feedback `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}
