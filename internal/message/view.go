package message

import "github.com/kazz187/dispatch/internal/task"

// ViewFor returns m as userID may see it in t's thread. Messages written by
// a hidden requester lose their author.
func (m *Message) ViewFor(t *task.Task, userID string) *Message {
	if m.AuthorID == "" || m.AuthorID != t.RequesterID || !t.HidesRequesterFrom(userID) {
		return m
	}
	c := *m
	c.AuthorID = ""
	return &c
}

// ViewAllFor applies ViewFor to every message of t's thread.
func ViewAllFor(msgs []*Message, t *task.Task, userID string) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ViewFor(t, userID))
	}
	return out
}
