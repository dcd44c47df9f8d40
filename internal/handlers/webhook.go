package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
)

// WebhookHandler receives WhatsApp Cloud API callbacks: subscription
// verification, inbound messages, and delivery status reports.
type WebhookHandler struct {
	conversation *conversation.Service
	dispatch     *dispatch.Service
	verifyToken  string
	logger       *slog.Logger
}

// NewWebhookHandler creates the WhatsApp webhook handler.
func NewWebhookHandler(log *slog.Logger, conversationSvc *conversation.Service, dispatchSvc *dispatch.Service, verifyToken string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		conversation: conversationSvc,
		dispatch:     dispatchSvc,
		verifyToken:  verifyToken,
		logger:       log.With(slog.String("handler", "webhook")),
	}
}

// Register mounts the webhook routes on the Echo instance.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook/whatsapp", h.Verify)
	e.POST("/webhook/whatsapp", h.Receive)
}

// Verify answers the Cloud API subscription handshake with the challenge.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		return c.String(http.StatusOK, challenge)
	}
	return c.String(http.StatusForbidden, "Verification failed")
}

type whatsappText struct {
	Body string `json:"body"`
}

type whatsappMessage struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      whatsappText `json:"text"`
}

type whatsappStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

type whatsappContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type whatsappChange struct {
	Field string `json:"field"`
	Value struct {
		Messages []whatsappMessage `json:"messages"`
		Statuses []whatsappStatus  `json:"statuses"`
		Contacts []whatsappContact `json:"contacts"`
	} `json:"value"`
}

type whatsappWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []whatsappChange `json:"changes"`
	} `json:"entry"`
}

// Receive processes one webhook delivery. It always acknowledges with 200 so
// the provider does not retry: per-message failures are logged and isolated.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var payload whatsappWebhook
	if err := c.Bind(&payload); err != nil {
		h.logger.Warn("malformed webhook payload", slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	ctx := c.Request().Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := map[string]string{}
			for _, wc := range change.Value.Contacts {
				names[wc.WaID] = wc.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				err := h.conversation.HandleInbound(ctx, conversation.InboundMessage{
					From:        msg.From,
					MessageID:   msg.ID,
					Text:        msg.Text.Body,
					Type:        msg.Type,
					ProfileName: names[msg.From],
					Timestamp:   unixTimestamp(msg.Timestamp),
				})
				if err != nil {
					h.logger.Error("inbound message failed",
						slog.String("message_id", msg.ID),
						slog.Any("error", err),
					)
				}
			}
			for _, status := range change.Value.Statuses {
				err := h.dispatch.Reconcile(ctx, status.RecipientID, status.ID, status.Status, unixTimestamp(status.Timestamp))
				if err != nil {
					h.logger.Error("delivery report failed",
						slog.String("message_id", status.ID),
						slog.Any("error", err),
					)
				}
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

func unixTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
