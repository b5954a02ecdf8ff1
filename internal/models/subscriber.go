package models

import "time"

// Subscriber lifecycle states. A subscriber is never hard-deleted; it moves
// between states so the audit trail survives.
const (
	SubscriberStatusPending      = "pending"
	SubscriberStatusActive       = "active"
	SubscriberStatusUnsubscribed = "unsubscribed"
)

// SubscriberModel is a confirmed (or formerly confirmed) newsletter subscriber.
// Email is the identity: unique, stored trimmed and lowercased.
type SubscriberModel struct {
	Base
	Email            string            `json:"email"         gorm:"uniqueIndex;not null"`
	Status           string            `json:"status"        gorm:"default:pending;index"`
	Source           string            `json:"source"        gorm:"default:web"`
	Tags             StringArray       `json:"tags"          gorm:"type:text"`
	Metadata         map[string]string `json:"metadata"      gorm:"type:text;serializer:json"`
	SubscribedAt     *time.Time        `json:"subscribed_at"`
	UnsubscribeToken string            `json:"-"             gorm:"uniqueIndex"`
	Verified         bool              `json:"verified"      gorm:"default:false"`
}

func (SubscriberModel) TableName() string { return "subscribers" }
