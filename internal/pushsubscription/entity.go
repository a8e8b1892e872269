package pushsubscription

import "time"

// Subscription is a browser push endpoint registered by a user.
type Subscription struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"userId" yaml:"user_id"`
	Endpoint  string    `json:"endpoint" yaml:"endpoint"`
	P256dhKey string    `json:"p256dhKey" yaml:"p256dh_key"`
	AuthKey   string    `json:"authKey" yaml:"auth_key"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}
