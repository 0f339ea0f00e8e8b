package model

import "time"

// State is the consent lifecycle state of a user's conversation.
type State string

const (
	StateNew             State = "new"
	StateAwaitingConsent State = "awaiting_consent"
	StateActive          State = "active"
	StatePaused          State = "paused"
	// StateForgotten is terminal; forgotten users are deleted from the store,
	// so the state only ever appears on an in-memory record about to be erased.
	StateForgotten State = "forgotten"
)

// User holds one platform identity, its conversation state and the pacing
// counters. There is exactly one conversation per user; its state and persona
// live on the user record.
type User struct {
	Platform       string     `json:"platform"`
	PlatformUserID string     `json:"platform_user_id"`
	Username       string     `json:"username"`
	State          State      `json:"state"`
	Persona        string     `json:"persona"`
	Timezone       string     `json:"timezone"`
	// DailyMessageCount counts proactive sends committed during the local day
	// CountWindowStart. It is reset when the local date advances and never
	// decreases within a window.
	DailyMessageCount int       `json:"daily_message_count"`
	CountWindowStart  string    `json:"count_window_start"` // local date, "2006-01-02"
	LastOutboundAt    time.Time `json:"last_outbound_at"`
	// NextContactAt is the next scheduled proactive contact, nil when none is
	// pending. Always computed strictly in the future.
	NextContactAt *time.Time `json:"next_contact_at,omitempty"`
	// Unreachable is set when the platform refused a send; proactive contact is
	// suppressed until the next genuine inbound message clears it.
	Unreachable bool      `json:"unreachable"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the store/lock key for the user identity.
func (u *User) Key() string {
	return u.Platform + ":" + u.PlatformUserID
}
