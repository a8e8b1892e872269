package eventbus

import (
	"time"

	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/internal/win"
)

type Type string

const (
	TypeTaskCreated    Type = "task:created"
	TypeTaskUpdated    Type = "task:updated"
	TypeTaskCompleted  Type = "task:completed"
	TypeTaskReassigned Type = "task:reassigned"
	TypeMessageNew     Type = "message:new"

	TypeProgressCheck   Type = "escalation:progress_check"
	TypeDeadlineWarning Type = "escalation:deadline_warning"
	TypeCheckIn         Type = "escalation:checkin"
	TypeManualReview    Type = "escalation:manual_review"
)

func (t Type) Escalation() bool {
	switch t {
	case TypeProgressCheck, TypeDeadlineWarning, TypeCheckIn, TypeManualReview:
		return true
	}
	return false
}

// Event is delivered to every user in Recipients.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TaskID     string    `json:"taskId"`
	Payload    any       `json:"payload,omitempty"`
	Recipients []string  `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type TaskPayload struct {
	Task *task.Task `json:"task"`
	// Set on task:reassigned.
	PreviousAssigneeID string `json:"previousAssigneeId,omitempty"`
	Reason             string `json:"reason,omitempty"`
	// Set on task:completed.
	Win *win.Win `json:"win,omitempty"`
}

type MessagePayload struct {
	Message *message.Message `json:"message"`
	// Task the message belongs to, for per-recipient views.
	Task *task.Task `json:"-"`
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityUrgent  Severity = "urgent"
)

type EscalationPayload struct {
	Task     *task.Task `json:"task"`
	Progress float64    `json:"progress"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
}
