package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSenderPostsJSON(t *testing.T) {
	t.Parallel()
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := Notification{ID: "n1", AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"}
	if err := NewHTTPSender().Send(context.Background(), srv.URL, n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ID != "n1" || got.Type != TypeTaskAssigned {
		t.Fatalf("server received %+v", got)
	}
}

func TestHTTPSenderNon2xxFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPSender().Send(context.Background(), srv.URL, Notification{ID: "n1"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}
