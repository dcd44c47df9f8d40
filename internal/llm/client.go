// Package llm is the AI completion and classification collaborator, an
// OpenAI-compatible chat completions client. Classification calls fail
// closed: unreachable providers or unparseable JSON degrade to the safe
// default decision instead of raising past this boundary.
package llm

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
)

// ChatMessage is one turn passed to the completion endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Intent is the classified intent of one inbound message.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Sentiment  string  `json:"sentiment"`
}

const intentSystemPrompt = `Analyze the user's message and classify the intent.
Return a JSON object with: {"intent": "greeting|question|objection|interested|not_interested|request_info", "confidence": 0.8, "sentiment": "positive|negative|neutral"}`

const escalationSystemPrompt = `Analyze if this conversation should be escalated to a human agent.
Consider: complex technical questions, pricing negotiations, complaints, or explicit requests for human agent.
Return JSON: {"should_escalate": true/false, "reason": "explanation"}`

// Client calls an OpenAI-compatible chat completions API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
	http    *http.Client
}

// NewClient creates an LLM client with a bounded request timeout.
func NewClient(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("llm client: base url is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("llm client: model is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		logger:  log.With(slog.String("client", "llm")),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete generates the agent's reply for the given system prompt and
// conversation history.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []ChatMessage) (string, error) {
	all := make([]ChatMessage, 0, len(messages)+1)
	all = append(all, ChatMessage{Role: "system", Content: systemPrompt})
	all = append(all, messages...)
	return c.callChat(ctx, chatRequest{
		Model:       c.model,
		Temperature: 0.7,
		MaxTokens:   500,
		Messages:    all,
	})
}

// AnalyzeIntent classifies one inbound message. Provider or parse failures
// return the unknown intent rather than an error.
func (c *Client) AnalyzeIntent(ctx context.Context, text string) Intent {
	fallback := Intent{Intent: "unknown", Confidence: 0.5, Sentiment: "neutral"}
	content, err := c.callChat(ctx, chatRequest{
		Model:       c.model,
		Temperature: 0.3,
		MaxTokens:   100,
		ResponseFormat: map[string]string{
			"type": "json_object",
		},
		Messages: []ChatMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		c.logger.Warn("intent analysis failed", slog.Any("error", err))
		return fallback
	}
	var parsed Intent
	if err := json.Unmarshal([]byte(removeCodeBlocks(content)), &parsed); err != nil {
		c.logger.Warn("intent response unparseable", slog.Any("error", err))
		return fallback
	}
	if parsed.Intent == "" {
		return fallback
	}
	return parsed
}

// ShouldEscalate asks the classifier whether the conversation needs a human.
// Any failure fails closed (no escalation).
func (c *Client) ShouldEscalate(ctx context.Context, conversation, latest string) (bool, string) {
	content, err := c.callChat(ctx, chatRequest{
		Model:       c.model,
		Temperature: 0.3,
		MaxTokens:   100,
		ResponseFormat: map[string]string{
			"type": "json_object",
		},
		Messages: []ChatMessage{
			{Role: "system", Content: escalationSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Conversation:\n%s\n\nLatest message: %s", conversation, latest)},
		},
	})
	if err != nil {
		c.logger.Warn("escalation analysis failed", slog.Any("error", err))
		return false, "Analysis failed"
	}
	var parsed struct {
		ShouldEscalate bool   `json:"should_escalate"`
		Reason         string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(removeCodeBlocks(content)), &parsed); err != nil {
		c.logger.Warn("escalation response unparseable", slog.Any("error", err))
		return false, "Analysis failed"
	}
	return parsed.ShouldEscalate, parsed.Reason
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Messages       []ChatMessage     `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) callChat(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm error: %s", strings.TrimSpace(string(b)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm response missing content")
	}
	return parsed.Choices[0].Message.Content, nil
}

func removeCodeBlocks(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
