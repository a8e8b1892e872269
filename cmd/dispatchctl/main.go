package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/dispatch/internal/fanout"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/task"
)

var (
	app       = kingpin.New("dispatchctl", "Command line client for the dispatch server")
	serverURL = app.Flag("server", "Server URL").Envar("DISPATCH_SERVER_URL").Default("http://localhost:3200").String()
	apiKey    = app.Flag("api-key", "API key").Envar("DISPATCH_API_KEY").Required().String()
	userID    = app.Flag("user", "Acting user id").Envar("DISPATCH_USER").Required().String()

	submitCmd    = app.Command("submit", "Describe work in plain language and route it")
	submitIntent = submitCmd.Arg("intent", "What needs doing").Required().Strings()

	listCmd  = app.Command("list", "List tasks")
	listView = listCmd.Flag("view", "assigned, requested or completed").Short('v').Default("assigned").Enum("assigned", "requested", "completed")

	showCmd = app.Command("show", "Show a task and its thread")
	showID  = showCmd.Arg("id", "Task ID").Required().String()

	startCmd = app.Command("start", "Start an assigned task")
	startID  = startCmd.Arg("id", "Task ID").Required().String()

	completeCmd    = app.Command("complete", "Complete a task")
	completeID     = completeCmd.Arg("id", "Task ID").Required().String()
	completeResult = completeCmd.Flag("result", "Result summary").Short('r').String()

	reassignCmd    = app.Command("reassign", "Hand a task to someone else")
	reassignID     = reassignCmd.Arg("id", "Task ID").Required().String()
	reassignTo     = reassignCmd.Arg("assignee", "Executor ID").Required().String()
	reassignReason = reassignCmd.Flag("reason", "Why").String()

	cancelCmd = app.Command("cancel", "Cancel a task")
	cancelID  = cancelCmd.Arg("id", "Task ID").Required().String()

	sayCmd     = app.Command("say", "Post a message to a task's thread")
	sayID      = sayCmd.Arg("id", "Task ID").Required().String()
	sayContent = sayCmd.Arg("content", "Message").Required().Strings()

	feedbackCmd     = app.Command("feedback", "Rate a completed task you requested")
	feedbackID      = feedbackCmd.Arg("id", "Task ID").Required().String()
	feedbackQuality = feedbackCmd.Arg("quality", "up or down").Required().Enum("up", "down")
	feedbackKudos   = feedbackCmd.Flag("kudos", "Send kudos").Bool()

	teamCmd = app.Command("team", "List executors and their load")

	winsCmd   = app.Command("wins", "Show recent wins")
	winsLimit = winsCmd.Flag("limit", "Number of wins").Default("20").Int()

	watchCmd = app.Command("watch", "Stream live events")

	importCmd  = app.Command("import", "Import tasks exported from the hosted task store")
	importFile = importCmd.Arg("file", "JSON array of task records").Required().ExistingFile()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newClient(*serverURL, *apiKey, *userID)
	if err := run(ctx, c, command, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client, command string, out io.Writer) error {
	switch command {
	case submitCmd.FullCommand():
		res, err := c.submit(ctx, strings.Join(*submitIntent, " "))
		if err != nil {
			return err
		}
		printTask(out, res.Task)
		if res.Reasoning != "" {
			fmt.Fprintln(out, res.Reasoning)
		}
	case listCmd.FullCommand():
		tasks, err := c.listTasks(ctx, *listView)
		if err != nil {
			return err
		}
		printTasks(out, tasks)
	case showCmd.FullCommand():
		d, err := c.getTask(ctx, *showID)
		if err != nil {
			return err
		}
		printTask(out, d.Task)
		for _, m := range d.Messages {
			author := m.AuthorID
			switch {
			case author != "":
			case m.Role == message.RoleUser:
				author = "requester"
			default:
				author = "dispatch"
			}
			fmt.Fprintf(out, "  [%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), author, m.Content)
		}
	case startCmd.FullCommand():
		t, err := c.action(ctx, *startID, "start", nil)
		return printAction(out, t, err)
	case completeCmd.FullCommand():
		t, err := c.action(ctx, *completeID, "complete", map[string]string{"result": *completeResult})
		return printAction(out, t, err)
	case reassignCmd.FullCommand():
		t, err := c.action(ctx, *reassignID, "reassign", map[string]string{"assigneeId": *reassignTo, "reason": *reassignReason})
		return printAction(out, t, err)
	case cancelCmd.FullCommand():
		t, err := c.action(ctx, *cancelID, "cancel", nil)
		return printAction(out, t, err)
	case sayCmd.FullCommand():
		return c.postMessage(ctx, *sayID, strings.Join(*sayContent, " "))
	case feedbackCmd.FullCommand():
		quality := task.QualityThumbsUp
		if *feedbackQuality == "down" {
			quality = task.QualityThumbsDown
		}
		t, err := c.action(ctx, *feedbackID, "feedback", map[string]any{"quality": quality, "kudos": *feedbackKudos})
		return printAction(out, t, err)
	case teamCmd.FullCommand():
		list, err := c.listExecutors(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tLOAD\tSKILLS")
		for _, e := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", e.ID, e.Name, e.Role, e.Load(), e.MaxConcurrentTasks, strings.Join(e.Skills, ","))
		}
		return w.Flush()
	case winsCmd.FullCommand():
		wins, err := c.listWins(ctx, *winsLimit)
		if err != nil {
			return err
		}
		for _, w := range wins {
			fmt.Fprintf(out, "%s  %s completed %q\n", w.CompletedAt.Local().Format("Jan 02 15:04"), w.CompletedByName, w.TaskTitle)
		}
	case watchCmd.FullCommand():
		return c.watch(ctx, func(f *fanout.Frame) {
			payload, _ := json.Marshal(f.Payload)
			fmt.Fprintf(out, "%s %s %s\n", color.CyanString(f.Type), f.TaskID, payload)
		})
	case importCmd.FullCommand():
		data, err := os.ReadFile(*importFile)
		if err != nil {
			return err
		}
		var records []task.RemoteTask
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to parse %s: %w", *importFile, err)
		}
		n, err := c.importTasks(ctx, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d of %d tasks\n", n, len(records))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func printAction(out io.Writer, t *task.Task, err error) error {
	if err != nil {
		return err
	}
	printTask(out, t)
	return nil
}

func printTask(out io.Writer, t *task.Task) {
	if t == nil {
		return
	}
	fmt.Fprintf(out, "%s  %s  %s\n", t.ID, statusColor(t.Status).Sprint(t.Status), t.Title)
	if t.AssigneeID != "" {
		fmt.Fprintf(out, "  assignee: %s\n", t.AssigneeID)
	}
	if t.Deadline != nil {
		fmt.Fprintf(out, "  deadline: %s\n", t.Deadline.Local().Format("Jan 02 15:04"))
	}
	if t.NeedsManualReview {
		fmt.Fprintln(out, color.RedString("  needs manual review"))
	}
	if t.Result != "" {
		fmt.Fprintf(out, "  result: %s\n", t.Result)
	}
}

func printTasks(out io.Writer, tasks []*task.Task) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDEADLINE\tTITLE")
	for _, t := range tasks {
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, deadline, t.Title)
	}
	w.Flush()
}

func statusColor(s task.Status) *color.Color {
	switch s {
	case task.StatusCompleted:
		return color.New(color.FgGreen)
	case task.StatusCancelled:
		return color.New(color.FgHiBlack)
	case task.StatusReassigned:
		return color.New(color.FgYellow)
	case task.StatusInProgress:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}
