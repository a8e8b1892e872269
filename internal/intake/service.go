package intake

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kazz187/dispatch/internal/assignment"
	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/lifecycle"
	"github.com/kazz187/dispatch/internal/router"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/clog"
)

// Service turns free-text intents into tasks.
type Service struct {
	router router.Router
	ctrl   *lifecycle.Controller
	now    func() time.Time
}

func NewService(r router.Router, ctrl *lifecycle.Controller) *Service {
	return &Service{router: r, ctrl: ctrl, now: time.Now}
}

type Result struct {
	Task *task.Task `json:"task"`
	// Selection is set when the scorer picked the assignee.
	Selection *assignment.Selection `json:"-"`
	Reasoning string                `json:"reasoning"`
}

// Submit routes intent and creates the task. ai_direct work the router
// already finished is completed on the spot; everything else is assigned to
// the router's choice when it is on the roster, or to the scorer's.
func (s *Service) Submit(ctx context.Context, requesterID, intent string) (*Result, error) {
	intent = strings.TrimSpace(intent)
	if requesterID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "requester is required", nil)
	}
	if intent == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "intent is required", nil)
	}

	executors, err := s.ctrl.ListExecutors(ctx)
	if err != nil {
		return nil, err
	}
	roster := make(map[string]*executor.Executor, len(executors))
	team := make([]router.Profile, 0, len(executors))
	for _, e := range executors {
		roster[e.ID] = e
		team = append(team, router.ProfileOf(e))
	}

	d, err := s.router.Route(ctx, router.Request{Intent: intent, Team: team, Now: s.now()})
	if err != nil {
		slog.WarnContext(ctx, "intent routing failed", "requester_id", requesterID, "error", err)
		return nil, err
	}
	clog.AddAttribute(ctx, "execution_tier", string(d.Tier))

	p := lifecycle.CreateParams{
		Title:            d.Title,
		Description:      d.Description,
		OriginalIntent:   intent,
		RequesterID:      requesterID,
		Tier:             d.Tier,
		Priority:         d.Priority,
		RequiredSkills:   d.RequiredSkills,
		EstimatedMinutes: d.EstimatedMinutes,
		Deadline:         d.Deadline,
		RoutingReason:    d.RoutingReason,
	}
	if p.Description == "" {
		p.Description = intent
	}
	var chosen *executor.Executor
	if d.Tier.NeedsExecutor() && d.AssigneeID != "" {
		if e, ok := roster[d.AssigneeID]; ok {
			chosen = e
			p.AssigneeID = e.ID
		} else {
			slog.WarnContext(ctx, "router chose an unknown executor, scoring instead", "assignee_id", d.AssigneeID)
		}
	}

	t, sel, err := s.ctrl.CreateTask(ctx, p)
	if err != nil {
		return nil, err
	}
	res := &Result{Task: t, Selection: sel}

	switch {
	case d.Tier == task.TierAIDirect && d.Result != "":
		done, _, err := s.ctrl.CompleteTask(ctx, t.ID, "", d.Result)
		if err != nil {
			return nil, err
		}
		res.Task = done
		res.Reasoning = "This doesn't require a human. Done."
	case d.Tier == task.TierAIDirect:
		res.Reasoning = "This doesn't require a human. Working on it..."
	case sel != nil:
		res.Reasoning = assignedReasoning(sel.Executor, sel.SkillScore, sel.AvailabilityScore)
		if sel.Degraded() {
			res.Reasoning += " " + sel.Reason
		}
	case chosen != nil:
		res.Reasoning = assignedReasoning(chosen, assignment.SkillScore(d.RequiredSkills, chosen), assignment.AvailabilityScore(chosen))
	default:
		res.Reasoning = "Nobody is available right now; the task is waiting for an assignee."
	}
	return res, nil
}

func assignedReasoning(e *executor.Executor, skill, availability float64) string {
	name := e.Name
	if name == "" {
		name = e.ID
	}
	return fmt.Sprintf("Assigning to %s (%s, %d%% skill match, %d%% capacity). %s won't know it's from you, keeping it anonymous to remove bias.",
		name, e.Role, percent(skill), percent(availability), name)
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
