package lifecycle

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
)

func (h *harness) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewHandler(h.ctrl).Routes(r)
	return r
}

func call(t *testing.T, srv http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set(request.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHandler_TaskFlow(t *testing.T) {
	h := newHarness(t, sarah(), jordan(), alex())
	srv := h.router()
	tk := h.createAssigned(t, "sarah")
	base := "/tasks/" + tk.ID

	rec := call(t, srv, http.MethodGet, base, "sarah", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[taskDetailResponse](t, rec)
	assert.Empty(t, detail.Task.RequesterID, "assignee does not see the anonymous requester")
	assert.NotEmpty(t, detail.Messages)

	rec = call(t, srv, http.MethodGet, base, "alex", "")
	assert.Equal(t, "alex", decode[taskDetailResponse](t, rec).Task.RequesterID)

	rec = call(t, srv, http.MethodPost, base+"/start", "jordan", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, srv, http.MethodPost, base+"/start", "sarah", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, task.StatusInProgress, decode[taskResponse](t, rec).Task.Status)

	rec = call(t, srv, http.MethodPost, base+"/messages", "sarah", `{"content":"on it"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, srv, http.MethodPost, base+"/complete", "sarah", `{"result":"shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[completeResponse](t, rec)
	assert.Equal(t, task.StatusCompleted, done.Task.Status)
	assert.Equal(t, "alex", done.Task.RequesterID, "revealed on completion")
	assert.Equal(t, "sarah", done.Win.CompletedByID)

	rec = call(t, srv, http.MethodPost, base+"/complete", "sarah", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = call(t, srv, http.MethodPost, base+"/feedback", "alex", `{"quality":"thumbs_up","kudos":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[taskResponse](t, rec).Task.Feedback.Kudos)

	rec = call(t, srv, http.MethodGet, "/wins", "alex", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listWinsResponse](t, rec).Wins, 1)

	rec = call(t, srv, http.MethodGet, "/tasks?view=completed", "sarah", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listTasksResponse](t, rec).Tasks, 1)
}

func TestHandler_ThreadHidesAnonymousRequester(t *testing.T) {
	h := newHarness(t, sarah(), jordan(), alex())
	srv := h.router()
	tk := h.createAssigned(t, "sarah")
	base := "/tasks/" + tk.ID

	rec := call(t, srv, http.MethodPost, base+"/messages", "alex", `{"content":"any update?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alex", decode[messageResponse](t, rec).Message.AuthorID)
	rec = call(t, srv, http.MethodPost, base+"/messages", "sarah", `{"content":"on it"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	authors := func(userID, path string) map[string]string {
		rec := call(t, srv, http.MethodGet, path, userID, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			Messages []struct {
				AuthorID string `json:"authorId"`
				Content  string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		out := map[string]string{}
		for _, m := range body.Messages {
			out[m.Content] = m.AuthorID
		}
		return out
	}

	for _, path := range []string{base, base + "/messages"} {
		seen := authors("sarah", path)
		assert.Empty(t, seen["any update?"], path)
		assert.Equal(t, "sarah", seen["on it"], path)
		assert.Equal(t, "alex", authors("alex", path)["any update?"], path)
	}

	rec = call(t, srv, http.MethodPost, base+"/complete", "sarah", `{"result":"shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alex", authors("sarah", base)["any update?"], "revealed on completion")
}

func TestHandler_CancelAndReassignNeedParticipant(t *testing.T) {
	h := newHarness(t, sarah(), jordan(), alex())
	srv := h.router()
	tk := h.createAssigned(t, "sarah")
	base := "/tasks/" + tk.ID

	rec := call(t, srv, http.MethodPost, base+"/reassign", "jordan", `{"assigneeId":"jordan"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, srv, http.MethodPost, base+"/reassign", "sarah", `{"assigneeId":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, srv, http.MethodPost, base+"/reassign", "sarah", `{"assigneeId":"jordan","reason":"out sick"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jordan", decode[taskResponse](t, rec).Task.AssigneeID)

	rec = call(t, srv, http.MethodPost, base+"/cancel", "sarah", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "previous assignee is no longer a participant")

	rec = call(t, srv, http.MethodPost, base+"/cancel", "alex", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, task.StatusCancelled, decode[taskResponse](t, rec).Task.Status)
	assert.Empty(t, h.executor(t, "jordan").CurrentTaskIDs)
}

func TestHandler_Errors(t *testing.T) {
	h := newHarness(t, sarah())
	srv := h.router()

	assert.Equal(t, http.StatusUnauthorized, call(t, srv, http.MethodGet, "/tasks?view=assigned", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodGet, "/tasks?view=inbox", "sarah", "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/tasks/missing", "sarah", "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/tasks/missing/messages", "sarah", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodGet, "/wins?limit=-1", "sarah", "").Code)

	rec := call(t, srv, http.MethodGet, "/executors", "sarah", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listExecutorsResponse](t, rec).Executors, 1)
}

func TestHandler_ImportTasks(t *testing.T) {
	h := newHarness(t, sarah(), jordan())
	srv := h.router()
	body := `{"tasks":[
		{"id":"r1","title":"Churn analysis","status":"in_progress","priority":"HIGH","requesterId":"alex","assigneeId":"jordan","assignedAt":"2026-10-16T09:00:00Z","deadline":"2026-10-16T10:00:00Z","createdAt":"2026-10-16T08:00:00Z"},
		{"id":"r2","title":"Old report","status":"completed","requesterId":"alex","assigneeId":"sarah","createdAt":"2026-10-15T08:00:00Z"},
		{"id":"r3","title":"Ghost work","status":"assigned","requesterId":"alex","assigneeId":"kim"}
	]}`

	rec := call(t, srv, http.MethodPost, "/tasks/import", "alex", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[importResponse](t, rec).Imported)
	assert.Equal(t, []string{"r1"}, h.executor(t, "jordan").CurrentTaskIDs)
	assert.Empty(t, h.executor(t, "sarah").CurrentTaskIDs, "completed tasks take no capacity")

	rec = call(t, srv, http.MethodPost, "/tasks/import", "alex", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[importResponse](t, rec).Imported)
	assert.Equal(t, []string{"r1"}, h.executor(t, "jordan").CurrentTaskIDs)

	rec = call(t, srv, http.MethodPost, "/tasks/import", "alex", `{"tasks":[{"title":"no id"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
