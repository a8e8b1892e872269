package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/fanout"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/internal/win"
)

type client struct {
	baseURL string
	apiKey  string
	userID  string
	http    *http.Client
}

func newClient(baseURL, apiKey, userID string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		userID:  userID,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set(request.UserIDHeader, c.userID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		e := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(data))
		}
		return e
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type submitResult struct {
	Task      *task.Task `json:"task"`
	Reasoning string     `json:"reasoning"`
}

func (c *client) submit(ctx context.Context, intent string) (*submitResult, error) {
	var out submitResult
	err := c.do(ctx, http.MethodPost, "/api/intents", map[string]string{"intent": intent}, &out)
	return &out, err
}

func (c *client) listTasks(ctx context.Context, view string) ([]*task.Task, error) {
	var out struct {
		Tasks []*task.Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tasks?view="+url.QueryEscape(view), nil, &out)
	return out.Tasks, err
}

type taskDetail struct {
	Task     *task.Task         `json:"task"`
	Messages []*message.Message `json:"messages"`
}

func (c *client) getTask(ctx context.Context, id string) (*taskDetail, error) {
	var out taskDetail
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// action posts to one of the task's state transitions.
func (c *client) action(ctx context.Context, id, name string, in any) (*task.Task, error) {
	var out struct {
		Task *task.Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/"+name, in, &out)
	return out.Task, err
}

func (c *client) postMessage(ctx context.Context, id, content string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/messages", map[string]string{"content": content}, nil)
}

func (c *client) importTasks(ctx context.Context, records []task.RemoteTask) (int, error) {
	var out struct {
		Imported int `json:"imported"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/import", map[string]any{"tasks": records}, &out)
	return out.Imported, err
}

func (c *client) listExecutors(ctx context.Context) ([]*executor.Executor, error) {
	var out struct {
		Executors []*executor.Executor `json:"executors"`
	}
	err := c.do(ctx, http.MethodGet, "/api/executors", nil, &out)
	return out.Executors, err
}

func (c *client) listWins(ctx context.Context, limit int) ([]*win.Win, error) {
	var out struct {
		Wins []*win.Win `json:"wins"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/wins?limit=%d", limit), nil, &out)
	return out.Wins, err
}

// watch streams the user's events until ctx is done or the server hangs up.
func (c *client) watch(ctx context.Context, fn func(*fanout.Frame)) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	origin := u.String()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"user_id": {c.userID}, "api_key": {c.apiKey}}.Encode()

	cfg, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ws.Close()
	}()
	defer ws.Close()

	for {
		var f fanout.Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(&f)
	}
}
