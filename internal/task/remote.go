package task

import (
	"strings"
	"time"
)

// RemoteTask is a task record as served by the hosted task store.
type RemoteTask struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Deadline           string   `json:"deadline"`
	Priority           string   `json:"priority"`
	RequiredSkills     []string `json:"requiredSkills"`
	Status             string   `json:"status"`
	RequesterID        string   `json:"requesterId"`
	AssigneeID         *string  `json:"assigneeId"`
	AssignedAt         *string  `json:"assignedAt"`
	CompletedAt        *string  `json:"completedAt"`
	AICompleted        bool     `json:"aiCompleted"`
	AIResult           *string  `json:"aiResult"`
	ProgressPercentage int      `json:"progressPercentage"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

// FromRemote maps a remote record onto a Task. It never fails: unknown enum
// values fall back to their defaults and unparsable timestamps are left unset.
//
// The remote store has no tier column; AI-completed tasks map to ai_direct and
// everything else to human. Its "failed" status maps to cancelled, and the
// assignment time is the start of the deadline window.
func FromRemote(r RemoteTask) *Task {
	t := &Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		OriginalIntent: r.Description,
		RequesterID:    r.RequesterID,
		ExecutionTier:  TierHuman,
		Status:         remoteStatus(r.Status),
		Priority:       Priority(strings.ToLower(r.Priority)),
		RequiredSkills: append([]string(nil), r.RequiredSkills...),
		Deadline:       parseRemoteTime(r.Deadline),
		StartedAt:      parseRemoteTimePtr(r.AssignedAt),
		CompletedAt:    parseRemoteTimePtr(r.CompletedAt),
		IsAnonymous:    true,
	}
	if !t.Priority.Valid() {
		t.Priority = PriorityMedium
	}
	if r.AssigneeID != nil {
		t.AssigneeID = *r.AssigneeID
	}
	if r.AICompleted {
		t.ExecutionTier = TierAIDirect
	}
	if r.AIResult != nil {
		t.Result = *r.AIResult
	}
	if created := parseRemoteTime(r.CreatedAt); created != nil {
		t.CreatedAt = *created
	}
	if updated := parseRemoteTime(r.UpdatedAt); updated != nil {
		t.UpdatedAt = *updated
	} else {
		t.UpdatedAt = t.CreatedAt
	}

	// A remote record may say "assigned" with no assignee; keep the assignee
	// invariant by demoting it.
	if t.AssigneeID == "" && (t.Status == StatusAssigned || t.Status == StatusInProgress || t.Status == StatusReassigned) {
		t.Status = StatusPending
	}
	if t.Status == StatusCompleted {
		t.RequesterRevealed = true
	}
	return t
}

func remoteStatus(s string) Status {
	switch st := Status(strings.ToLower(s)); st {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusReassigned, StatusCancelled:
		return st
	case "failed", "canceled":
		return StatusCancelled
	}
	return StatusPending
}

func parseRemoteTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	return parseRemoteTime(*s)
}

func parseRemoteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
