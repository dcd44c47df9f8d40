package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icupa/outreach/internal/conversation"
)

// VoiceHandler receives Twilio voice callbacks and answers with TwiML.
type VoiceHandler struct {
	conversation *conversation.Service
}

// NewVoiceHandler creates the voice webhook handler.
func NewVoiceHandler(conversationSvc *conversation.Service) *VoiceHandler {
	return &VoiceHandler{conversation: conversationSvc}
}

// Register mounts the voice webhook route on the Echo instance.
func (h *VoiceHandler) Register(e *echo.Echo) {
	e.POST("/webhook/voice", h.Receive)
}

// Receive handles one voice callback. The orchestrator always produces TwiML,
// so the provider never sees an error status.
func (h *VoiceHandler) Receive(c echo.Context) error {
	twiml := h.conversation.HandleVoice(c.Request().Context(), conversation.VoiceEvent{
		CallSID:      c.FormValue("CallSid"),
		From:         c.FormValue("From"),
		To:           c.FormValue("To"),
		CallStatus:   c.FormValue("CallStatus"),
		SpeechResult: c.FormValue("SpeechResult"),
		Digits:       c.FormValue("Digits"),
	})
	return c.Blob(http.StatusOK, "text/xml", []byte(twiml))
}
