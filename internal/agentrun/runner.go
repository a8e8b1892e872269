package agentrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/lifecycle"
	"github.com/kazz187/dispatch/internal/task"
)

const systemPrompt = "You are completing a task from a team's work queue. Do the work described, then reply with a short summary of what you did."

// Agent runs one prompt to completion and returns its final answer.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// ClaudeAgent runs prompts through the Claude agent SDK.
type ClaudeAgent struct {
	workDir  string
	maxTurns int
}

func NewClaudeAgent(env *config.AgentRunnerEnv) *ClaudeAgent {
	return &ClaudeAgent{workDir: env.WorkDir, maxTurns: env.MaxTurns}
}

func (a *ClaudeAgent) Run(ctx context.Context, prompt string) (string, error) {
	maxTurns := a.maxTurns
	result, err := claudeagent.RunQuerySync(ctx, prompt, &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   systemPrompt,
		Cwd:            a.workDir,
		PermissionMode: claudeagent.PermissionModeBypassPermissions,
		MaxTurns:       &maxTurns,
	})
	if err != nil {
		return "", err
	}
	if result.Result == nil {
		return "", errors.New("agent returned no result")
	}
	if result.Result.IsError {
		msg := result.Result.Result
		if msg == "" {
			msg = "agent returned an error"
		}
		return "", errors.New(msg)
	}
	return result.Result.Result, nil
}

// Runner hands AI-tier tasks to an Agent as they are created. ai_agent
// tasks run on behalf of their assignee; ai_direct tasks the router left
// unfinished complete with no human actor. A failed run leaves the task
// where it was and says so in the thread.
type Runner struct {
	ctrl    *lifecycle.Controller
	bus     *eventbus.Bus
	agent   Agent
	timeout time.Duration
}

func NewRunner(ctrl *lifecycle.Controller, bus *eventbus.Bus, agent Agent, env *config.AgentRunnerEnv) *Runner {
	return &Runner{ctrl: ctrl, bus: bus, agent: agent, timeout: env.Timeout}
}

func (r *Runner) Start(ctx context.Context) {
	subID, ch := r.bus.Subscribe(256)
	defer r.bus.Unsubscribe(subID)

	wg := conc.NewWaitGroup()
	defer wg.Wait()

	slog.Info("agent runner started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("agent runner stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type != eventbus.TypeTaskCreated {
				continue
			}
			p, ok := event.Payload.(*eventbus.TaskPayload)
			if !ok || p.Task == nil || !Runnable(p.Task) {
				continue
			}
			t := p.Task
			wg.Go(func() {
				if err := r.Handle(ctx, t); err != nil {
					slog.ErrorContext(ctx, "agent run failed", "task_id", t.ID, "error", err)
				}
			})
		}
	}
}

// Runnable reports whether the runner picks up t.
func Runnable(t *task.Task) bool {
	switch t.ExecutionTier {
	case task.TierAIAgent:
		return t.AssigneeID != "" && (t.Status == task.StatusAssigned || t.Status == task.StatusReassigned)
	case task.TierAIDirect:
		return t.Status == task.StatusPending
	}
	return false
}

// Handle runs t to completion.
func (r *Runner) Handle(ctx context.Context, t *task.Task) error {
	actor := ""
	if t.ExecutionTier == task.TierAIAgent {
		actor = t.AssigneeID
		if _, err := r.ctrl.StartTask(ctx, t.ID, actor); err != nil {
			return fmt.Errorf("failed to start task: %w", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.agent.Run(runCtx, prompt(t))
	cancel()
	if err != nil {
		note := "The AI agent could not finish this task: " + err.Error()
		if actor != "" {
			note += ". It is still assigned to you."
		}
		if _, perr := r.ctrl.PostSystemMessage(ctx, t.ID, note); perr != nil {
			slog.ErrorContext(ctx, "failed to post agent failure", "task_id", t.ID, "error", perr)
		}
		return err
	}

	if _, _, err := r.ctrl.CompleteTask(ctx, t.ID, actor, strings.TrimSpace(result)); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	slog.InfoContext(ctx, "agent completed task", "task_id", t.ID, "tier", t.ExecutionTier)
	return nil
}

func prompt(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	if t.OriginalIntent != "" && t.OriginalIntent != t.Description {
		fmt.Fprintf(&b, "Original request: %s\n", t.OriginalIntent)
	}
	if len(t.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Skills involved: %s\n", strings.Join(t.RequiredSkills, ", "))
	}
	return b.String()
}
