package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/dispatch/internal/eventbus"
)

// Dispatcher pushes escalations and reassignments to the browsers of the
// users involved.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if p := buildPayload(event); p != nil {
				d.sender.SendToUsers(ctx, event.Recipients, p)
			}
		}
	}
}

func buildPayload(event *eventbus.Event) *NotificationPayload {
	url := fmt.Sprintf("/tasks/%s", event.TaskID)
	switch p := event.Payload.(type) {
	case *eventbus.EscalationPayload:
		title := "Deadline update"
		switch event.Type {
		case eventbus.TypeDeadlineWarning:
			title = "Deadline warning"
		case eventbus.TypeCheckIn:
			title = "Deadline check-in"
		case eventbus.TypeManualReview:
			title = "Needs manual review"
		}
		return &NotificationPayload{Title: title, Body: p.Message, URL: url, Tag: event.TaskID}
	case *eventbus.TaskPayload:
		if event.Type != eventbus.TypeTaskReassigned || p.Task == nil {
			return nil
		}
		body := fmt.Sprintf("%q has a new assignee.", p.Task.Title)
		if p.Reason != "" {
			body += " Reason: " + p.Reason
		}
		return &NotificationPayload{Title: "Task reassigned", Body: body, URL: url, Tag: event.TaskID}
	}
	return nil
}
