package task

import (
	"slices"
	"time"
)

type Tier string

const (
	TierAIDirect Tier = "ai_direct"
	TierAIAgent  Tier = "ai_agent"
	TierHuman    Tier = "human"
)

func (t Tier) Valid() bool {
	switch t {
	case TierAIDirect, TierAIAgent, TierHuman:
		return true
	}
	return false
}

// NeedsExecutor reports whether tasks of this tier are assigned to an executor.
func (t Tier) NeedsExecutor() bool {
	return t == TierHuman || t == TierAIAgent
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusReassigned Status = "reassigned"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the deadline monitor scans tasks in this status.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusReassigned
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities from urgent (0) to low (3).
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

type EscalationState struct {
	CheckedAt50         bool     `json:"checkedAt50" yaml:"checked_at_50"`
	WarnedAt75          bool     `json:"warnedAt75" yaml:"warned_at_75"`
	ReassignedAt90      bool     `json:"reassignedAt90" yaml:"reassigned_at_90"`
	PreviousAssigneeIDs []string `json:"previousAssigneeIds" yaml:"previous_assignee_ids"`
}

// AddPreviousAssignee appends id unless it is empty or already recorded.
func (e *EscalationState) AddPreviousAssignee(id string) {
	if id == "" || slices.Contains(e.PreviousAssigneeIDs, id) {
		return
	}
	e.PreviousAssigneeIDs = append(e.PreviousAssigneeIDs, id)
}

type Quality string

const (
	QualityThumbsUp   Quality = "thumbs_up"
	QualityThumbsDown Quality = "thumbs_down"
)

type Feedback struct {
	Quality      Quality   `json:"quality" yaml:"quality"`
	Kudos        bool      `json:"kudos" yaml:"kudos"`
	FeedbackByID string    `json:"feedbackById" yaml:"feedback_by_id"`
	CreatedAt    time.Time `json:"createdAt" yaml:"created_at"`
}

type AssignmentRecord struct {
	FromID string    `json:"fromId" yaml:"from_id"`
	ToID   string    `json:"toId" yaml:"to_id"`
	Reason string    `json:"reason" yaml:"reason"`
	At     time.Time `json:"at" yaml:"at"`
}

type Task struct {
	ID                string             `json:"id" yaml:"id"`
	Title             string             `json:"title" yaml:"title"`
	Description       string             `json:"description" yaml:"description"`
	OriginalIntent    string             `json:"originalIntent" yaml:"original_intent"`
	RequesterID       string             `json:"requesterId" yaml:"requester_id"`
	AssigneeID        string             `json:"assigneeId,omitempty" yaml:"assignee_id,omitempty"`
	ExecutionTier     Tier               `json:"executionTier" yaml:"execution_tier"`
	RoutingReason     string             `json:"routingReason" yaml:"routing_reason"`
	Status            Status             `json:"status" yaml:"status"`
	Priority          Priority           `json:"priority" yaml:"priority"`
	RequiredSkills    []string           `json:"requiredSkills" yaml:"required_skills"`
	EstimatedMinutes  int                `json:"estimatedMinutes,omitempty" yaml:"estimated_minutes,omitempty"`
	Deadline          *time.Time         `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	CreatedAt         time.Time          `json:"createdAt" yaml:"created_at"`
	UpdatedAt         time.Time          `json:"updatedAt" yaml:"updated_at"`
	StartedAt         *time.Time         `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
	Escalation        *EscalationState   `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	Result            string             `json:"result,omitempty" yaml:"result,omitempty"`
	Feedback          *Feedback          `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	IsAnonymous       bool               `json:"isAnonymous" yaml:"is_anonymous"`
	RequesterRevealed bool               `json:"requesterRevealed" yaml:"requester_revealed"`
	NeedsManualReview bool               `json:"needsManualReview" yaml:"needs_manual_review"`
	AssignmentHistory []AssignmentRecord `json:"assignmentHistory,omitempty" yaml:"assignment_history,omitempty"`
}

// EscalationState returns the task's escalation state, creating it on first use.
func (t *Task) EscalationState() *EscalationState {
	if t.Escalation == nil {
		t.Escalation = &EscalationState{}
	}
	return t.Escalation
}

// Subscribers returns the distinct, non-empty ids of the assignee and requester.
func (t *Task) Subscribers() []string {
	var ids []string
	for _, id := range []string{t.AssigneeID, t.RequesterID} {
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Progress is the elapsed fraction of the window between StartedAt and
// Deadline at now, clamped to [0, 1]. ok is false when either bound is unset.
func (t *Task) Progress(now time.Time) (progress float64, ok bool) {
	if t.StartedAt == nil || t.Deadline == nil {
		return 0, false
	}
	window := t.Deadline.Sub(*t.StartedAt)
	if window <= 0 {
		return 1, true
	}
	p := float64(now.Sub(*t.StartedAt)) / float64(window)
	return min(max(p, 0), 1), true
}

// HidesRequesterFrom reports whether userID must not learn who asked for t.
// Until an anonymous task is revealed only its requester knows.
func (t *Task) HidesRequesterFrom(userID string) bool {
	return t.IsAnonymous && !t.RequesterRevealed && userID != t.RequesterID
}

// ViewFor returns t as userID may see it.
func (t *Task) ViewFor(userID string) *Task {
	if !t.HidesRequesterFrom(userID) {
		return t
	}
	c := *t
	c.RequesterID = ""
	return &c
}
