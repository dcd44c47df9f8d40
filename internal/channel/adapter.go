// Package channel defines the outbound delivery contract and the registry
// of configured channel adapters.
package channel

import (
	"context"
	"fmt"
)

// Adapter sends text through one delivery mechanism.
type Adapter interface {
	Name() string
	// SendText delivers body to the recipient and returns the provider's
	// message id. It fails with *Error on a non-success provider response
	// or a response missing the expected id field.
	SendText(ctx context.Context, to, body string) (string, error)
}

// VoiceAction selects the markup appended after the spoken text in a voice
// response.
type VoiceAction string

// Voice response actions.
const (
	VoiceGather VoiceAction = "gather"
	VoiceHangup VoiceAction = "hangup"
	VoiceNone   VoiceAction = "none"
)

// VoiceAdapter is a channel that can also place calls and build voice
// response markup.
type VoiceAdapter interface {
	Adapter
	PlaceCall(ctx context.Context, to string) (string, error)
	VoiceResponse(say string, next VoiceAction) string
}

// Error is a provider-level delivery failure.
type Error struct {
	Channel string
	Status  int
	Body    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s channel error (%d): %s", e.Channel, e.Status, e.Body)
}
