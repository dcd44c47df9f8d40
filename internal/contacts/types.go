package contacts

import "time"

// Contact lifecycle statuses. escalated and converted are terminal for
// automated outreach: the follow-up sweep checks both before sending.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusReplied   = "replied"
	StatusEscalated = "escalated"
	StatusConverted = "converted"
)

// Message senders.
const (
	FromUser  = "user"
	FromAgent = "agent"
)

// MessageStatusSentToAPI is the initial status of an outbound message; the
// provider's delivery webhook moves it forward asynchronously.
const MessageStatusSentToAPI = "sent_to_api"

// Message is one conversation turn embedded in a Contact. After append only
// Status and StatusUpdatedAt may change, keyed by MessageID.
type Message struct {
	From            string     `json:"from"`
	Text            string     `json:"text"`
	MessageID       string     `json:"message_id,omitempty"`
	CallSID         string     `json:"call_sid,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	Status          string     `json:"status,omitempty"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
}

// Contact is the aggregate root for one external identity. The document id
// is the identity key (phone number or channel handle) and never changes.
type Contact struct {
	ID               string     `json:"-"`
	PhoneNumber      string     `json:"phone_number"`
	Platform         string     `json:"platform"`
	AgentID          string     `json:"agent_id"`
	Status           string     `json:"status"`
	Language         string     `json:"language"`
	Name             string     `json:"name,omitempty"`
	VenueName        string     `json:"venue_name,omitempty"`
	Messages         []Message  `json:"messages"`
	Escalation       bool       `json:"escalation"`
	EscalationID     string     `json:"escalation_id,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	EscalationDate   *time.Time `json:"escalation_date,omitempty"`
	ConversionID     string     `json:"conversion_id,omitempty"`
	ConversionType   string     `json:"conversion_type,omitempty"`
	ConversionValue  float64    `json:"conversion_value,omitempty"`
	LastResponse     string     `json:"last_response,omitempty"`
	LastCallSID      string     `json:"last_call_sid,omitempty"`
	LastCallDone     *time.Time `json:"last_call_completed,omitempty"`
	NextFollowup     *time.Time `json:"next_followup,omitempty"`
	FollowupCount    int        `json:"followup_count"`
	CreatedAt        time.Time  `json:"created_at"`
	LastInteraction  time.Time  `json:"last_interaction"`
}

// Seed is the caller-supplied part of a new contact record.
type Seed struct {
	PhoneNumber string
	Platform    string
	AgentID     string
	Name        string
	Language    string
}
