package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/pushsubscription"
)

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type Sender struct {
	vapidEnv   *config.VAPIDEnv
	repo       pushsubscription.Repository
	httpClient webpush.HTTPClient
}

type SenderOption func(*Sender)

func WithHTTPClient(c webpush.HTTPClient) SenderOption {
	return func(s *Sender) {
		s.httpClient = c
	}
}

func NewSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, opts ...SenderOption) *Sender {
	s := &Sender{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Enabled() bool {
	return s.vapidEnv.VAPIDPrivateKey != "" && s.vapidEnv.VAPIDPublicKey != ""
}

// SendToUsers pushes payload to every subscription registered by userIDs.
func (s *Sender) SendToUsers(ctx context.Context, userIDs []string, payload *NotificationPayload) {
	if !s.Enabled() {
		slog.Debug("push notification: VAPID keys not configured, skipping")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("push notification: failed to marshal payload", "error", err)
		return
	}

	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		subs, err := s.repo.ListByUser(ctx, userID)
		if err != nil {
			slog.Error("push notification: failed to list subscriptions", "user_id", userID, "error", err)
			continue
		}
		for _, sub := range subs {
			s.sendToSubscription(ctx, sub, data)
		}
	}
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, wpSub, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapidEnv.VAPIDPrivateKey,
		Subscriber:      s.vapidEnv.VAPIDContact,
		TTL:             86400,
	})
	if err != nil {
		slog.Error("push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		slog.Info("push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.Error("push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.Warn("push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
