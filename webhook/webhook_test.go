package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyPostsFlatPayloadWithEventID(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Unexpected error decoding request body (%v)", err)
		}
	}))
	defer server.Close()

	payload := map[string]any{
		"email": "jane@example.com",
		"class": "Cycle 45",
	}

	if err := Notify(context.Background(), server.URL, payload); err != nil {
		t.Fatalf("Unexpected error returned from Notify (%v)", err)
	}

	if body["email"] != "jane@example.com" || body["class"] != "Cycle 45" {
		t.Errorf("Incorrect payload: %v", body)
	}

	if id, ok := body["event_id"].(string); !ok || id == "" {
		t.Errorf("Missing event_id in payload: %v", body)
	}
}

func TestNotifyFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	if err := Notify(context.Background(), server.URL, map[string]any{}); err == nil {
		t.Fatalf("Expected error return for failed webhook, got %v", err)
	}
}
