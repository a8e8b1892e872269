package lifecycle

import (
	"context"
	"log/slog"

	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
)

// ImportTasks stores tasks synced from the hosted task store and returns how
// many were new. Tasks already present are left untouched. An imported active
// task counts against its assignee's capacity when the assignee is on the
// roster.
func (c *Controller) ImportTasks(ctx context.Context, tasks []*task.Task) (int, error) {
	imported := 0
	for _, t := range tasks {
		if t.ID == "" {
			return imported, invalidArgument("imported task has no id", "id.required")
		}
		ok, err := c.importTask(ctx, t)
		if err != nil {
			return imported, err
		}
		if ok {
			imported++
		}
	}
	slog.InfoContext(ctx, "tasks imported", "received", len(tasks), "imported", imported)
	return imported, nil
}

func (c *Controller) importTask(ctx context.Context, t *task.Task) (bool, error) {
	unlock := c.store.LockTask(t.ID)
	defer unlock()

	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Tasks.Create(ctx, t); err != nil {
			return err
		}
		if t.AssigneeID == "" || !t.Status.Active() {
			return nil
		}
		e, err := r.Executors.Get(ctx, t.AssigneeID)
		switch {
		case err == nil:
			if e.AddTask(t.ID) {
				return r.Executors.Save(ctx, e)
			}
			return nil
		case IsNotFound(err):
			slog.WarnContext(ctx, "imported task assignee is not on the roster", "task_id", t.ID, "assignee_id", t.AssigneeID)
			return nil
		default:
			return err
		}
	})
	if cerr.IsCode(err, cerr.AlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.bus.PublishNew(eventbus.TypeTaskCreated, t.ID, &eventbus.TaskPayload{Task: t}, t.Subscribers())
	return true, nil
}
