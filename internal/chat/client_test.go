// ABOUTME: Tests for the upstream chat client
// ABOUTME: Uses httptest servers to cover success, upstream errors, and timeouts

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSend_Success(t *testing.T) {
	var gotPath string
	var gotBody Request

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello adventurer"}`))
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, 5*time.Second)

	resp, err := client.Send(context.Background(), "flow-1", &Request{
		Question:  "boot",
		Variables: map[string]any{"userId": "user-1"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotPath != "/api/v1/prediction/flow-1" {
		t.Errorf("path = %q, want %q", gotPath, "/api/v1/prediction/flow-1")
	}
	if gotBody.Question != "boot" {
		t.Errorf("question = %q, want %q", gotBody.Question, "boot")
	}

	var parsed map[string]string
	if err := json.Unmarshal(resp, &parsed); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if parsed["text"] != "hello adventurer" {
		t.Errorf("text = %q", parsed["text"])
	}
}

func TestSend_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, 5*time.Second)

	_, err := client.Send(context.Background(), "flow-1", &Request{Question: "hi"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Send() error = %v, want ErrUpstream", err)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	// Server closed immediately: nothing is listening on its port anymore
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	client := NewClient(upstream.URL, time.Second)

	_, err := client.Send(context.Background(), "flow-1", &Request{Question: "hi"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Send() error = %v, want ErrUpstream", err)
	}
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		upstream.Close()
	}()

	client := NewClient(upstream.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := client.Send(context.Background(), "flow-1", &Request{Question: "hi"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Send() error = %v, want ErrUpstream", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send() took %v, timeout did not bound the request", elapsed)
	}
}
