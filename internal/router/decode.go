package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kazz187/dispatch/internal/task"
)

type wireTask struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	AssigneeID       *string         `json:"assigneeId"`
	Priority         string          `json:"priority"`
	EstimatedMinutes *float64        `json:"estimatedMinutes"`
	RequiredSkills   []string        `json:"requiredSkills"`
	RoutingReason    string          `json:"routingReason"`
	Deadline         json.RawMessage `json:"deadline"`
}

type wireDecision struct {
	wireTask
	ExecutionTier string    `json:"executionTier"`
	Result        string    `json:"result"`
	Task          *wireTask `json:"task"`
}

// Decode maps the router's JSON answer to a Decision. Code fences and text
// around the JSON object are ignored. The task fields may be flat or nested
// under "task". An unparsable answer, an unknown tier or a missing title is
// a routing failure; other bad fields fall back to defaults.
func Decode(text string) (*Decision, error) {
	raw := extractObject(text)
	if raw == nil {
		return nil, routingFailure("router returned no JSON object", nil)
	}
	var w wireDecision
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return nil, routingFailure("router returned malformed JSON", err)
	}
	wt := w.wireTask
	if w.Task != nil {
		wt = *w.Task
	}

	tier := task.Tier(strings.ToLower(strings.TrimSpace(w.ExecutionTier)))
	if !tier.Valid() {
		return nil, routingFailure(fmt.Sprintf("router returned unknown execution tier %q", w.ExecutionTier), nil)
	}
	title := strings.TrimSpace(wt.Title)
	if title == "" {
		return nil, routingFailure("router returned no title", nil)
	}

	d := &Decision{
		Title:          title,
		Description:    strings.TrimSpace(wt.Description),
		Tier:           tier,
		Priority:       task.Priority(strings.ToLower(wt.Priority)),
		RequiredSkills: normalizeSkills(wt.RequiredSkills),
		RoutingReason:  strings.TrimSpace(wt.RoutingReason),
		Deadline:       decodeDeadline(wt.Deadline),
		Result:         w.Result,
	}
	if !d.Priority.Valid() {
		d.Priority = task.PriorityMedium
	}
	if wt.AssigneeID != nil && tier != task.TierAIDirect {
		d.AssigneeID = strings.TrimSpace(*wt.AssigneeID)
	}
	if wt.EstimatedMinutes != nil && *wt.EstimatedMinutes > 0 {
		d.EstimatedMinutes = int(*wt.EstimatedMinutes)
	}
	return d, nil
}

func extractObject(text string) []byte {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil
	}
	return []byte(text[start : end+1])
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// decodeDeadline accepts unix milliseconds as a number or string, or an
// RFC 3339 timestamp. Anything else leaves the deadline unset.
func decodeDeadline(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return millis(int64(ms))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return millis(n)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts = ts.UTC()
		return &ts
	}
	return nil
}

func millis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	ts := time.UnixMilli(ms).UTC()
	return &ts
}
