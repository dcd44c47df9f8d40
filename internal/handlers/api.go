package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
	"github.com/icupa/outreach/internal/escalation"
	"github.com/icupa/outreach/internal/followup"
)

// APIHandler serves the operator-facing API: outbound sends, calls,
// escalations, follow-up scheduling, and conversion tracking.
type APIHandler struct {
	conversation *conversation.Service
	dispatch     *dispatch.Service
	escalation   *escalation.Service
	followup     *followup.Service
}

// NewAPIHandler creates the operator API handler.
func NewAPIHandler(conversationSvc *conversation.Service, dispatchSvc *dispatch.Service, escalationSvc *escalation.Service, followupSvc *followup.Service) *APIHandler {
	return &APIHandler{
		conversation: conversationSvc,
		dispatch:     dispatchSvc,
		escalation:   escalationSvc,
		followup:     followupSvc,
	}
}

// Register mounts the operator API routes on the Echo instance.
func (h *APIHandler) Register(e *echo.Echo) {
	group := e.Group("/api")
	group.POST("/send-message", h.SendMessage)
	group.POST("/initiate-call", h.InitiateCall)
	group.POST("/escalate", h.Escalate)
	group.POST("/follow-up", h.ScheduleFollowUp)
	group.POST("/track-conversion", h.TrackConversion)
}

type sendMessageRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
}

// SendMessage dispatches one outbound message.
func (h *APIHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	messageID, err := h.dispatch.Send(c.Request().Context(), req.To, req.Message, req.Platform)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"message_id": messageID,
	})
}

type initiateCallRequest struct {
	To      string `json:"to"`
	AgentID string `json:"agent_id"`
}

// InitiateCall places an outbound voice call.
func (h *APIHandler) InitiateCall(c echo.Context) error {
	var req initiateCallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field: to")
	}
	callSID, err := h.conversation.InitiateCall(c.Request().Context(), req.To, req.AgentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"call_sid": callSID,
	})
}

type escalateRequest struct {
	ContactID  string `json:"contact_id"`
	Reason     string `json:"reason"`
	Priority   string `json:"priority"`
	AgentNotes string `json:"agent_notes"`
}

// Escalate hands a contact over to a human agent.
func (h *APIHandler) Escalate(c echo.Context) error {
	var req escalateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ContactID == "" || req.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields: contact_id, reason")
	}
	escalationID, err := h.escalation.Escalate(c.Request().Context(), req.ContactID, req.Reason, req.Priority, req.AgentNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"escalation_id": escalationID,
		"message":       "Lead escalated successfully",
	})
}

type followUpRequest struct {
	ContactID       string            `json:"contact_id"`
	DelayHours      int               `json:"delay_hours"`
	MessageTemplate string            `json:"message_template"`
	Context         map[string]string `json:"context"`
}

// ScheduleFollowUp books a deferred outreach touch.
func (h *APIHandler) ScheduleFollowUp(c echo.Context) error {
	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ContactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field: contact_id")
	}
	followupID, scheduledAt, err := h.followup.Schedule(c.Request().Context(), req.ContactID, req.DelayHours, req.MessageTemplate, req.Context)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"followup_id":    followupID,
		"scheduled_time": scheduledAt.Format(time.RFC3339),
		"message":        "Follow-up scheduled successfully",
	})
}

type trackConversionRequest struct {
	ContactID      string         `json:"contact_id"`
	ConversionType string         `json:"conversion_type"`
	Value          float64        `json:"value"`
	Currency       string         `json:"currency"`
	Metadata       map[string]any `json:"metadata"`
}

// TrackConversion records a closed deal for a contact.
func (h *APIHandler) TrackConversion(c echo.Context) error {
	var req trackConversionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ContactID == "" || req.ConversionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields: contact_id, conversion_type")
	}
	conversionID, err := h.conversation.TrackConversion(c.Request().Context(), conversation.ConversionRequest{
		ContactID:      req.ContactID,
		ConversionType: req.ConversionType,
		Value:          req.Value,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"conversion_id": conversionID,
		"message":       "Conversion tracked successfully",
	})
}
