package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

func TestNotifyPostsPayload(t *testing.T) {
	var received domain.CallbackPayload
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(2 * time.Second)
	payload := domain.CallbackPayload{
		ModelID: "model-1",
		ProcessResult: domain.ProcessResult{
			Success:      true,
			Status:       domain.StatusReady,
			ElementCount: 12,
		},
	}
	if err := n.Notify(context.Background(), server.URL, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contentType != "application/json" {
		t.Fatalf("content type = %q", contentType)
	}
	if received.ModelID != "model-1" || !received.Success || received.ElementCount != 12 {
		t.Fatalf("received = %+v", received)
	}
}

func TestNotifyNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	n := New(2 * time.Second)
	err := n.Notify(context.Background(), server.URL, domain.CallbackPayload{ModelID: "model-1"})
	if err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestNotifySingleAttempt(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "later", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := New(2 * time.Second)
	_ = n.Notify(context.Background(), server.URL, domain.CallbackPayload{ModelID: "model-1"})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want exactly 1", attempts)
	}
}
