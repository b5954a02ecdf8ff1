package newsletter

import "time"

// SubscribeDTO is the POST /subscribe body. Email is the only required field;
// source defaults to "web".
type SubscribeDTO struct {
	Email    string            `json:"email"`
	Source   string            `json:"source"`
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
}

// UnsubscribeDTO is the POST /newsletter/unsubscribe body. Either Token or
// Email+Confirm identifies the subscriber; Reason and Feedback are optional.
type UnsubscribeDTO struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Confirm  bool   `json:"confirm"`
	Reason   string `json:"reason"`
	Feedback string `json:"feedback"`
}

// RequestMeta carries per-request context the audit log wants.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type SubscribeResult struct {
	Email     string `json:"email"`
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

type ConfirmResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	SubscribedAt string `json:"subscribedAt"`
}

type UnsubscribeResult struct {
	Email  string `json:"email,omitempty"`
	Status string `json:"status"`

	// known is false when neither token nor email matched anything. The
	// response is identical either way; the handler uses it to feed the
	// token replay guard.
	known bool
}

// StatsResult is the operator-facing aggregate payload.
type StatsResult struct {
	Total        int64            `json:"total"`
	Active       int64            `json:"active"`
	Pending      int64            `json:"pending"`
	Unsubscribed int64            `json:"unsubscribed"`
	Signups7d    int64            `json:"signups7d"`
	Signups30d   int64            `json:"signups30d"`
	BySource     map[string]int64 `json:"bySource"`
	ByTag        map[string]int64 `json:"byTag"`
	ByReason     map[string]int64 `json:"unsubscribeReasons"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}
