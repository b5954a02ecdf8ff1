package models

// Unsubscribe reasons accepted from clients. Anything else is rejected at the
// handler boundary.
const (
	UnsubReasonTooFrequent    = "too_frequent"
	UnsubReasonNotRelevant    = "not_relevant"
	UnsubReasonNeverSignedUp  = "never_signed_up"
	UnsubReasonPrivacy        = "privacy_concerns"
	UnsubReasonTechnical      = "technical_issues"
	UnsubReasonContentQuality = "content_quality"
	UnsubReasonOther          = "other"
)

// UnsubscribeLogModel is an append-only audit record written once per
// unsubscribe action. Source and Tags snapshot the subscription as it was at
// unsubscribe time, for analytics.
type UnsubscribeLogModel struct {
	Base
	SubscriberID string      `json:"subscriber_id" gorm:"index"`
	Email        string      `json:"email"         gorm:"index"`
	Reason       string      `json:"reason"`
	Feedback     string      `json:"feedback"      gorm:"type:text"`
	UserAgent    string      `json:"user_agent"    gorm:"size:512"`
	IP           string      `json:"ip"            gorm:"size:64"`
	Source       string      `json:"source"`
	Tags         StringArray `json:"tags"          gorm:"type:text"`
}

func (UnsubscribeLogModel) TableName() string { return "unsubscribe_logs" }

// ValidUnsubscribeReason reports whether reason is one of the accepted enum values.
func ValidUnsubscribeReason(reason string) bool {
	switch reason {
	case UnsubReasonTooFrequent, UnsubReasonNotRelevant, UnsubReasonNeverSignedUp,
		UnsubReasonPrivacy, UnsubReasonTechnical, UnsubReasonContentQuality, UnsubReasonOther:
		return true
	}
	return false
}
