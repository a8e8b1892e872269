package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/lifecycle"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
)

const (
	progressCheckThreshold   = 0.50
	deadlineWarningThreshold = 0.75
	reassignThreshold        = 0.90
)

var activeStatuses = []task.Status{task.StatusAssigned, task.StatusInProgress, task.StatusReassigned}

// Escalator performs the reassignment that follows a declined check-in.
type Escalator interface {
	ReassignAway(ctx context.Context, taskID, expectedAssigneeID string) (*lifecycle.EscalationResult, error)
}

// Monitor scans active tasks with a deadline and walks each through the
// 50/75/90 escalation ladder. Each stage fires at most once per task.
type Monitor struct {
	store          *store.Store
	escalator      Escalator
	bus            *eventbus.Bus
	checkIn        CheckIn
	interval       time.Duration
	checkInTimeout time.Duration
	now            func() time.Time

	// Check-ins outlive the tick that started them.
	checkIns conc.WaitGroup
	slots    chan struct{}
	mu       sync.Mutex
	inFlight map[string]struct{}
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func NewMonitor(st *store.Store, escalator Escalator, bus *eventbus.Bus, checkIn CheckIn, env *config.MonitorEnv, opts ...Option) *Monitor {
	m := &Monitor{
		store:          st,
		escalator:      escalator,
		bus:            bus,
		checkIn:        checkIn,
		interval:       env.Interval,
		checkInTimeout: env.CheckInTimeout,
		now:            time.Now,
		slots:          make(chan struct{}, max(env.MaxCheckIns, 1)),
		inFlight:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start scans once immediately, then on every interval until ctx is done.
// It returns after the pending check-ins have stopped.
func (m *Monitor) Start(ctx context.Context) {
	slog.InfoContext(ctx, "deadline monitor started", "interval", m.interval)
	m.runTick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Wait()
			slog.InfoContext(ctx, "deadline monitor stopped")
			return
		case <-ticker.C:
			m.runTick(ctx)
		}
	}
}

func (m *Monitor) runTick(ctx context.Context) {
	if err := m.Tick(ctx, m.now()); err != nil {
		slog.ErrorContext(ctx, "deadline scan failed", "error", err)
	}
}

// Tick runs one scan at now. Check-ins due after the scan run in the
// background, at most MaxCheckIns at a time; use Wait to wait for them.
func (m *Monitor) Tick(ctx context.Context, now time.Time) error {
	tasks, err := m.store.Tasks.List(ctx, task.Filter{Statuses: activeStatuses})
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if t.StartedAt == nil || t.Deadline == nil {
			continue
		}
		due, err := m.escalate(ctx, t.ID, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to update escalation state", "task_id", t.ID, "error", err)
			continue
		}
		if due != nil {
			m.startCheckIn(ctx, due)
		}
	}
	return nil
}

// Wait blocks until every started check-in has finished.
func (m *Monitor) Wait() {
	m.checkIns.Wait()
}

func (m *Monitor) startCheckIn(ctx context.Context, t *task.Task) {
	m.mu.Lock()
	if _, ok := m.inFlight[t.ID]; ok {
		m.mu.Unlock()
		return
	}
	m.inFlight[t.ID] = struct{}{}
	m.mu.Unlock()

	m.checkIns.Go(func() {
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, t.ID)
			m.mu.Unlock()
		}()
		select {
		case m.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-m.slots }()
		m.runCheckIn(ctx, t)
	})
}

type notice struct {
	typ      eventbus.Type
	severity eventbus.Severity
	message  string
}

// escalate advances the task's flags under its lock. It returns the task
// when the final stage fired and a check-in is due.
func (m *Monitor) escalate(ctx context.Context, taskID string, now time.Time) (*task.Task, error) {
	unlock := m.store.LockTask(taskID)
	defer unlock()

	var (
		t        *task.Task
		progress float64
		notices  []notice
		due      bool
	)
	err := m.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if !t.Status.Active() {
			return nil
		}
		var ok bool
		if progress, ok = t.Progress(now); !ok {
			return nil
		}

		esc := t.EscalationState()
		if progress >= progressCheckThreshold && !esc.CheckedAt50 {
			esc.CheckedAt50 = true
			notices = append(notices, notice{eventbus.TypeProgressCheck, eventbus.SeverityInfo,
				fmt.Sprintf("%q is halfway to its deadline.", t.Title)})
		}
		if progress >= deadlineWarningThreshold && !esc.WarnedAt75 {
			esc.WarnedAt75 = true
			notices = append(notices, notice{eventbus.TypeDeadlineWarning, eventbus.SeverityWarning,
				fmt.Sprintf("%q has used 75%% of its time.", t.Title)})
		}
		if progress >= reassignThreshold && !esc.ReassignedAt90 {
			esc.ReassignedAt90 = true
			due = true
			notices = append(notices, notice{eventbus.TypeCheckIn, eventbus.SeverityUrgent,
				fmt.Sprintf("%q is about to miss its deadline. Can it still be finished in time?", t.Title)})
		}
		if len(notices) == 0 {
			return nil
		}
		t.UpdatedAt = now
		return r.Tasks.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	for _, n := range notices {
		slog.InfoContext(ctx, "deadline escalation", "task_id", t.ID, "type", n.typ, "progress", progress)
		m.bus.PublishNew(n.typ, t.ID, &eventbus.EscalationPayload{
			Task:     t,
			Progress: progress,
			Severity: n.severity,
			Message:  n.message,
		}, t.Subscribers())
	}
	if due {
		return t, nil
	}
	return nil, nil
}

func (m *Monitor) runCheckIn(ctx context.Context, t *task.Task) {
	cctx, cancel := context.WithTimeout(ctx, m.checkInTimeout)
	answer, err := m.checkIn.Confirm(cctx, t)
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "deadline check-in got no answer", "task_id", t.ID, "assignee_id", t.AssigneeID, "error", err)
		answer = AnswerUnsupported
	}
	if ctx.Err() != nil {
		return
	}
	if answer == AnswerCanFinish {
		slog.InfoContext(ctx, "assignee confirmed deadline", "task_id", t.ID, "assignee_id", t.AssigneeID)
		return
	}

	res, err := m.escalator.ReassignAway(ctx, t.ID, t.AssigneeID)
	if err != nil {
		slog.ErrorContext(ctx, "deadline reassignment failed", "task_id", t.ID, "error", err)
		return
	}
	slog.InfoContext(ctx, "deadline check-in resolved", "task_id", t.ID, "answer", answer, "outcome", res.Outcome, "assignee_id", res.Task.AssigneeID)
}
