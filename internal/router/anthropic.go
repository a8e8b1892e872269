package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kazz187/dispatch/internal/config"
)

// AnthropicRouter asks a Claude model to route intents.
type AnthropicRouter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

var _ Router = (*AnthropicRouter)(nil)

func NewAnthropicRouter(env *config.RouterEnv, opts ...option.RequestOption) (*AnthropicRouter, error) {
	if env.AnthropicAPIKey == "" {
		return nil, errors.New("anthropic API key is not configured")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(env.AnthropicAPIKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicRouter{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(env.Model),
		maxTokens: env.MaxTokens,
		timeout:   env.Timeout,
	}, nil
}

// Route makes a single bounded call. Cancellation of ctx and the router
// timeout both abort the request.
func (r *AnthropicRouter) Route(ctx context.Context, req Request) (*Decision, error) {
	if strings.TrimSpace(req.Intent) == "" {
		return nil, routingFailure("intent is empty", nil)
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Intent)),
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, routingFailure("router timed out", err)
		}
		return nil, routingFailure("router request failed", err)
	}
	slog.DebugContext(ctx, "router responded", "model", r.model, "duration", time.Since(start),
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return Decode(text.String())
}

func systemPrompt(req Request) string {
	team, _ := json.Marshal(req.Team)
	return fmt.Sprintf(`You are a task coordinator. Analyze the request and route it to the best executor.

## Team members
%s

## Execution tiers
- "ai_direct": you can complete the task yourself (writing, summarization, analysis, code generation). Put the finished work in "result".
- "ai_agent": needs an AI agent with tool access, run on behalf of the team member whose skills match.
- "human": needs human judgment, approval or real-world action.

## Deadlines
The current time is %s (unix ms %d). If the request mentions a deadline, convert it to unix milliseconds.
"ASAP" means one hour from now; "by end of day" means 17:00 today. Omit "deadline" when none is mentioned.

## Rules
1. Prefer "ai_direct" for writing, summarization, analysis and data tasks.
2. Match required skills to team member skills exactly as listed.
3. Do not pick a team member whose currentLoad has reached maxCapacity.
4. Explain the routing in one sentence.

## Output
Respond with ONLY a JSON object:
{"title": "...", "description": "...", "executionTier": "ai_direct" | "ai_agent" | "human",
 "assigneeId": "id or null", "priority": "low" | "medium" | "high" | "urgent",
 "estimatedMinutes": 30, "requiredSkills": ["..."], "routingReason": "...",
 "deadline": 1234567890000, "result": "only for ai_direct"}`,
		team, req.Now.UTC().Format(time.RFC3339), req.Now.UnixMilli())
}
