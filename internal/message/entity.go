package message

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a task's discussion thread. System messages have
// an empty AuthorID and the assistant role.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	TaskID    string    `json:"taskId" yaml:"task_id"`
	AuthorID  string    `json:"authorId,omitempty" yaml:"author_id,omitempty"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}
