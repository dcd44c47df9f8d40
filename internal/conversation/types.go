package conversation

import "time"

// InboundMessage is one message lifted out of a provider webhook payload.
type InboundMessage struct {
	From        string
	MessageID   string
	Text        string
	Type        string
	ProfileName string
	Timestamp   time.Time
}

// VoiceEvent is one Twilio voice webhook callback.
type VoiceEvent struct {
	CallSID      string
	From         string
	To           string
	CallStatus   string
	SpeechResult string
	Digits       string
}

// ConversionRequest records a closed deal for a contact.
type ConversionRequest struct {
	ContactID      string
	ConversionType string
	Value          float64
	Currency       string
	Metadata       map[string]any
}
