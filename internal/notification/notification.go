package notification

import "time"

// DeviceToken is a push registration for a member's phone.
type DeviceToken struct {
	Token    string    `json:"token"`
	Platform string    `json:"platform"`
	AddedAt  time.Time `json:"added_at"`
	LastUsed time.Time `json:"last_used"`
}

// Message is a rendered notification ready for delivery. The core decides
// what to send and to whom; transport is the provider's problem.
type Message struct {
	Title string
	Body  string
}
