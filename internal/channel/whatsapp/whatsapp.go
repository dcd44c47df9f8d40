// Package whatsapp delivers text messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/icupa/outreach/internal/channel"
)

// ChannelName is the registry name of this adapter.
const ChannelName = "whatsapp"

// Adapter sends messages through the Cloud API messages endpoint.
type Adapter struct {
	apiURL string
	token  string
	logger *slog.Logger
	http   *http.Client
}

// NewAdapter creates a WhatsApp adapter for the given messages endpoint.
func NewAdapter(log *slog.Logger, apiURL, token string, timeout time.Duration) (*Adapter, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("whatsapp: api url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		apiURL: apiURL,
		token:  token,
		logger: log.With(slog.String("channel", ChannelName)),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name implements channel.Adapter.
func (a *Adapter) Name() string { return ChannelName }

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText implements channel.Adapter.
func (a *Adapter) SendText(ctx context.Context, to, body string) (string, error) {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
	}
	payload.Text.Body = body

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("whatsapp: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &channel.Error{
			Channel: ChannelName,
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(respBody)),
		}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", &channel.Error{
			Channel: ChannelName,
			Status:  resp.StatusCode,
			Body:    "unexpected response structure: " + strings.TrimSpace(string(respBody)),
		}
	}

	a.logger.Debug("message accepted",
		slog.String("to", to),
		slog.String("message_id", parsed.Messages[0].ID),
	)
	return parsed.Messages[0].ID, nil
}
