package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icupa/outreach/internal/channel"
)

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("authorization = %q", got)
		}
		var payload textPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.MessagingProduct != "whatsapp" || payload.Type != "text" {
			t.Errorf("payload = %+v", payload)
		}
		if payload.To != "250788000001" || payload.Text.Body != "hello" {
			t.Errorf("payload = %+v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.ABC"}},
		})
	}))
	defer srv.Close()

	adapter, err := NewAdapter(slog.Default(), srv.URL, "secret-token", time.Second)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	id, err := adapter.SendText(context.Background(), "250788000001", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.ABC" {
		t.Fatalf("message id = %q", id)
	}
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid recipient"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter, _ := NewAdapter(slog.Default(), srv.URL, "t", time.Second)
	_, err := adapter.SendText(context.Background(), "bad", "hello")

	var chErr *channel.Error
	if !errors.As(err, &chErr) {
		t.Fatalf("err = %v, want *channel.Error", err)
	}
	if chErr.Status != http.StatusBadRequest || chErr.Channel != ChannelName {
		t.Fatalf("channel error = %+v", chErr)
	}
}

func TestSendTextMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages": []}`))
	}))
	defer srv.Close()

	adapter, _ := NewAdapter(slog.Default(), srv.URL, "t", time.Second)
	if _, err := adapter.SendText(context.Background(), "x", "y"); err == nil {
		t.Fatal("want error for response without message id")
	}
}

func TestNewAdapterRequiresURL(t *testing.T) {
	if _, err := NewAdapter(slog.Default(), "", "t", 0); err == nil {
		t.Fatal("want error for empty api url")
	}
}
