// Package twilio delivers SMS and places voice calls through the Twilio
// REST API, and builds the voice response markup the voice webhook returns.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icupa/outreach/internal/channel"
)

// ChannelName is the registry name of the SMS side of this adapter.
const ChannelName = "sms"

// Adapter sends SMS and places calls for one Twilio account.
type Adapter struct {
	apiBase    string
	accountSID string
	authToken  string
	fromNumber string
	voiceURL   string
	logger     *slog.Logger
	http       *http.Client
}

// NewAdapter creates a Twilio adapter. voiceURL is the publicly reachable
// voice webhook placed calls are pointed at.
func NewAdapter(log *slog.Logger, apiBase, accountSID, authToken, fromNumber, voiceURL string, timeout time.Duration) (*Adapter, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, fmt.Errorf("twilio: account sid and auth token are required")
	}
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.twilio.com"
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		apiBase:    strings.TrimRight(apiBase, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		voiceURL:   voiceURL,
		logger:     log.With(slog.String("channel", ChannelName)),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name implements channel.Adapter.
func (a *Adapter) Name() string { return ChannelName }

// SendText implements channel.Adapter by sending an SMS.
func (a *Adapter) SendText(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.fromNumber)
	form.Set("Body", body)
	return a.post(ctx, "/Messages.json", form)
}

// PlaceCall implements channel.VoiceAdapter by initiating an outbound call
// handled by the voice webhook.
func (a *Adapter) PlaceCall(ctx context.Context, to string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.fromNumber)
	form.Set("Url", a.voiceURL)
	form.Set("Method", http.MethodPost)
	return a.post(ctx, "/Calls.json", form)
}

type apiResponse struct {
	SID string `json:"sid"`
}

func (a *Adapter) post(ctx context.Context, resource string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s%s", a.apiBase, a.accountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: send: %w", err)
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

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.SID == "" {
		return "", &channel.Error{
			Channel: ChannelName,
			Status:  resp.StatusCode,
			Body:    "unexpected response structure: " + strings.TrimSpace(string(respBody)),
		}
	}
	return parsed.SID, nil
}
