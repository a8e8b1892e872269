package lifecycle

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/internal/win"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/clog"
)

const defaultWinsLimit = 50

type Handler struct {
	ctrl *Controller
}

func NewHandler(ctrl *Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/tasks", h.listTasks)
	r.Post("/tasks/import", h.importTasks)
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", h.getTask)
		r.Post("/start", h.startTask)
		r.Post("/complete", h.completeTask)
		r.Post("/cancel", h.cancelTask)
		r.Post("/reassign", h.reassignTask)
		r.Post("/feedback", h.submitFeedback)
		r.Get("/messages", h.listMessages)
		r.Post("/messages", h.postMessage)
	})
	r.Get("/executors", h.listExecutors)
	r.Get("/wins", h.listWins)
}

func taskID(r *http.Request) string {
	id := chi.URLParam(r, "taskID")
	clog.AddTaskID(r.Context(), id)
	return id
}

type taskResponse struct {
	Task *task.Task `json:"task"`
}

type taskDetailResponse struct {
	Task     *task.Task         `json:"task"`
	Messages []*message.Message `json:"messages"`
}

type listTasksResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

func (h *Handler) listTasks(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	view, err := task.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "view must be assigned, requested or completed", err)
		return
	}
	tasks, err := h.ctrl.ListTasks(ctx, view, userID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ViewFor(userID))
	}
	cerr.SetJSONResponse(ctx, &listTasksResponse{Tasks: out})
}

func (h *Handler) getTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := taskID(r)
	t, err := h.ctrl.GetTask(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	msgs, err := h.ctrl.ListMessages(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskDetailResponse{Task: t.ViewFor(userID), Messages: message.ViewAllFor(msgs, t, userID)})
}

func (h *Handler) startTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := h.ctrl.StartTask(ctx, taskID(r), userID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskResponse{Task: t.ViewFor(userID)})
}

type completeRequest struct {
	Result string `json:"result"`
}

type completeResponse struct {
	Task *task.Task `json:"task"`
	Win  *win.Win   `json:"win"`
}

func (h *Handler) completeTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req completeRequest
	if r.ContentLength != 0 {
		if err := request.DecodeJSON(r, &req); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	t, w, err := h.ctrl.CompleteTask(ctx, taskID(r), userID, req.Result)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &completeResponse{Task: t, Win: w})
}

// cancelTask lets either side of the task call it off.
func (h *Handler) cancelTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := taskID(r)
	t, err := h.ctrl.GetTask(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if userID != t.RequesterID && userID != t.AssigneeID {
		cerr.SetJSONError(ctx, notAuthorized(userID, "cancel"))
		return
	}
	if t, err = h.ctrl.CancelTask(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskResponse{Task: t.ViewFor(userID)})
}

type reassignRequest struct {
	AssigneeID string `json:"assigneeId"`
	Reason     string `json:"reason"`
}

func (h *Handler) reassignTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req reassignRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.AssigneeID == "" {
		cerr.SetJSONError(ctx, invalidArgument("assigneeId is required", "assignee_id.required"))
		return
	}
	id := taskID(r)
	t, err := h.ctrl.GetTask(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if userID != t.RequesterID && userID != t.AssigneeID {
		cerr.SetJSONError(ctx, notAuthorized(userID, "reassign"))
		return
	}
	if t, err = h.ctrl.ReassignTask(ctx, id, req.AssigneeID, req.Reason); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskResponse{Task: t.ViewFor(userID)})
}

type feedbackRequest struct {
	Quality task.Quality `json:"quality"`
	Kudos   bool         `json:"kudos"`
}

func (h *Handler) submitFeedback(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req feedbackRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := h.ctrl.SubmitFeedback(ctx, taskID(r), userID, req.Quality, req.Kudos)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &taskResponse{Task: t})
}

type importRequest struct {
	Tasks []task.RemoteTask `json:"tasks"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (h *Handler) importTasks(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := request.UserID(r); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req importRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks := make([]*task.Task, 0, len(req.Tasks))
	for _, rt := range req.Tasks {
		tasks = append(tasks, task.FromRemote(rt))
	}
	n, err := h.ctrl.ImportTasks(ctx, tasks)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &importResponse{Imported: n})
}

type listMessagesResponse struct {
	Messages []*message.Message `json:"messages"`
}

func (h *Handler) listMessages(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := taskID(r)
	t, err := h.ctrl.GetTask(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	msgs, err := h.ctrl.ListMessages(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &listMessagesResponse{Messages: message.ViewAllFor(msgs, t, userID)})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	Message *message.Message `json:"message"`
}

func (h *Handler) postMessage(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req postMessageRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	m, err := h.ctrl.PostMessage(ctx, taskID(r), userID, req.Content)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &messageResponse{Message: m})
}

type listExecutorsResponse struct {
	Executors []*executor.Executor `json:"executors"`
}

func (h *Handler) listExecutors(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.ctrl.ListExecutors(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if list == nil {
		list = []*executor.Executor{}
	}
	cerr.SetJSONResponse(ctx, &listExecutorsResponse{Executors: list})
}

type listWinsResponse struct {
	Wins []*win.Win `json:"wins"`
}

func (h *Handler) listWins(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultWinsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	wins, err := h.ctrl.ListWins(ctx, limit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if wins == nil {
		wins = []*win.Win{}
	}
	cerr.SetJSONResponse(ctx, &listWinsResponse{Wins: wins})
}
