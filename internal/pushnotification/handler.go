package pushnotification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/pushsubscription"
	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/pkg/cerr"
)

type Handler struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
}

func NewHandler(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Handler {
	return &Handler{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/push/vapid-public-key", h.getVapidPublicKey)
	r.Post("/push/subscriptions", h.register)
	r.Delete("/push/subscriptions", h.unregister)
	r.Post("/push/test", h.sendTest)
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (h *Handler) getVapidPublicKey(_ http.ResponseWriter, r *http.Request) {
	if h.vapidEnv.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(r.Context(), &vapidKeyResponse{PublicKey: h.vapidEnv.VAPIDPublicKey})
}

type registerRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

func (h *Handler) register(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req registerRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	switch {
	case req.Endpoint == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	case req.P256dhKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "p256dhKey is required", nil)
		return
	case req.AuthKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "authKey is required", nil)
		return
	}

	sub := &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		CreatedAt: time.Now(),
	}
	if err := h.repo.Save(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type unregisterRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handler) unregister(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req unregisterRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := h.repo.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (h *Handler) sendTest(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	h.sender.SendToUsers(ctx, []string{userID}, &NotificationPayload{
		Title: "Dispatch",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, struct{}{})
}
