package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/dispatch/internal/task"
)

func TestMessage_ViewFor(t *testing.T) {
	tk := &task.Task{ID: "t1", RequesterID: "alex", AssigneeID: "sarah", IsAnonymous: true}
	fromRequester := &Message{ID: "m1", AuthorID: "alex", Content: "any update?"}
	fromAssignee := &Message{ID: "m2", AuthorID: "sarah", Content: "on it"}
	system := &Message{ID: "m3", Role: RoleAssistant, Content: "assigned"}

	tests := []struct {
		name   string
		msg    *Message
		userID string
		want   string
	}{
		{"requester hidden from assignee", fromRequester, "sarah", ""},
		{"requester sees self", fromRequester, "alex", "alex"},
		{"assignee stays visible", fromAssignee, "jordan", "sarah"},
		{"system message", system, "sarah", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.ViewFor(tk, tt.userID).AuthorID)
		})
	}
	assert.Equal(t, "alex", fromRequester.AuthorID)

	revealed := *tk
	revealed.RequesterRevealed = true
	assert.Equal(t, "alex", fromRequester.ViewFor(&revealed, "sarah").AuthorID)

	all := ViewAllFor([]*Message{fromRequester, fromAssignee}, tk, "sarah")
	assert.Equal(t, []string{"", "sarah"}, []string{all[0].AuthorID, all[1].AuthorID})
	assert.NotNil(t, ViewAllFor(nil, tk, "sarah"))
}
