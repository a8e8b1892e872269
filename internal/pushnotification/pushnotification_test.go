package pushnotification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/pushsubscription"
	"github.com/kazz187/dispatch/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

func newRepo(t *testing.T) pushsubscription.Repository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(s)
}

func vapidEnv(t *testing.T) *config.VAPIDEnv {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &config.VAPIDEnv{VAPIDPublicKey: pub, VAPIDPrivateKey: priv, VAPIDContact: "mailto:test@example.com"}
}

func browserSubscription(t *testing.T, userID, endpoint string) *pushsubscription.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestSender_SendToUsers(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer push.Close()

	repo := newRepo(t)
	live := browserSubscription(t, "sarah", push.URL+"/live")
	gone := browserSubscription(t, "sarah", push.URL+"/gone")
	other := browserSubscription(t, "jordan", push.URL+"/other")
	for _, s := range []*pushsubscription.Subscription{live, gone, other} {
		require.NoError(t, repo.Save(ctx, s))
	}

	s := NewSender(vapidEnv(t), repo, WithHTTPClient(push.Client()))
	s.SendToUsers(ctx, []string{"sarah", ""}, &NotificationPayload{Title: "Deadline warning", Body: "hurry"})

	assert.EqualValues(t, 2, hits.Load())
	subs, err := repo.ListByUser(ctx, "sarah")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, live.Endpoint, subs[0].Endpoint)
}

func TestSender_DisabledWithoutKeys(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer push.Close()

	repo := newRepo(t)
	require.NoError(t, repo.Save(ctx, browserSubscription(t, "sarah", push.URL)))
	s := NewSender(&config.VAPIDEnv{}, repo, WithHTTPClient(push.Client()))
	assert.False(t, s.Enabled())
	s.SendToUsers(ctx, []string{"sarah"}, &NotificationPayload{Title: "x"})
	assert.Zero(t, hits.Load())
}

func TestBuildPayload(t *testing.T) {
	tk := &task.Task{ID: "t1", Title: "Churn analysis"}

	p := buildPayload(&eventbus.Event{Type: eventbus.TypeDeadlineWarning, TaskID: "t1", Payload: &eventbus.EscalationPayload{Task: tk, Message: "75% used"}})
	require.NotNil(t, p)
	assert.Equal(t, "Deadline warning", p.Title)
	assert.Equal(t, "75% used", p.Body)
	assert.Equal(t, "/tasks/t1", p.URL)

	p = buildPayload(&eventbus.Event{Type: eventbus.TypeTaskReassigned, TaskID: "t1", Payload: &eventbus.TaskPayload{Task: tk, Reason: "capacity"}})
	require.NotNil(t, p)
	assert.Equal(t, "Task reassigned", p.Title)
	assert.Contains(t, p.Body, "capacity")

	assert.Nil(t, buildPayload(&eventbus.Event{Type: eventbus.TypeTaskUpdated, Payload: &eventbus.TaskPayload{Task: tk}}))
	assert.Nil(t, buildPayload(&eventbus.Event{Type: eventbus.TypeMessageNew, Payload: &eventbus.MessagePayload{}}))
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	h.Routes(r)
	return r
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	env := vapidEnv(t)
	router := newRouter(NewHandler(env, repo, NewSender(env, repo)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/push/vapid-public-key", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), env.VAPIDPublicKey)

	body := `{"endpoint":"https://push.example.com/1","p256dhKey":"k","authKey":"a"}`
	req := httptest.NewRequest(http.MethodPost, "/push/subscriptions", strings.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/push/subscriptions", strings.NewReader(body))
	req.Header.Set(request.UserIDHeader, "sarah")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	subs, err := repo.ListByUser(ctx, "sarah")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	req = httptest.NewRequest(http.MethodPost, "/push/subscriptions", strings.NewReader(`{"endpoint":""}`))
	req.Header.Set(request.UserIDHeader, "sarah")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/push/subscriptions", strings.NewReader(`{"endpoint":"https://push.example.com/1"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	subs, err = repo.ListByUser(ctx, "sarah")
	require.NoError(t, err)
	assert.Empty(t, subs)

	rec = httptest.NewRecorder()
	router = newRouter(NewHandler(&config.VAPIDEnv{}, repo, NewSender(&config.VAPIDEnv{}, repo)))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/push/vapid-public-key", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}
