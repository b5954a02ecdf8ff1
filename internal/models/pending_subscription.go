package models

// PendingSubscriptionModel holds a not-yet-confirmed subscription keyed by its
// confirmation token. At most one live row per email; rows are deleted on
// confirmation (replay then reads as not-found) and expire lazily against the
// configured TTL compared to CreatedAt.
type PendingSubscriptionModel struct {
	Base
	Email    string            `json:"email"    gorm:"uniqueIndex;not null"`
	Token    string            `json:"-"        gorm:"type:char(32);uniqueIndex;not null"`
	Source   string            `json:"source"   gorm:"default:web"`
	Tags     StringArray       `json:"tags"     gorm:"type:text"`
	Metadata map[string]string `json:"metadata" gorm:"type:text;serializer:json"`
}

func (PendingSubscriptionModel) TableName() string { return "pending_subscriptions" }
