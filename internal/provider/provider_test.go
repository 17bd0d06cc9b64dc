package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.mp3")
	if err := os.WriteFile(path, []byte("fake-audio-bytes"), 0600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	return NewClient(cfg)
}

func TestClient_SyncResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"text":          "hello from the provider",
			"language_code": "en",
		})
	})

	res, err := client.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: writeTestAudio(t)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Async() {
		t.Error("sync response should not be async")
	}
	if res.Text != "hello from the provider" || res.Language != "en" {
		t.Errorf("got %+v", res)
	}
}

func TestClient_AsyncCorrelation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-42"})
	})

	res, err := client.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: writeTestAudio(t)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.Async() {
		t.Fatal("response with request_id should be async")
	}
	if res.CorrelationID != "req-42" {
		t.Errorf("CorrelationID = %q, want req-42", res.CorrelationID)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrProviderRateLimited},
		{"invalid input", http.StatusUnprocessableEntity, domain.ErrInvalidInput},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidInput},
		{"gateway timeout", http.StatusGatewayTimeout, domain.ErrProviderTimeout},
		{"server error", http.StatusInternalServerError, domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.name, tt.status)
			})
			_, err := client.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: writeTestAudio(t)})
			if !errors.Is(err, tt.want) {
				t.Errorf("status %d classified as %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestClient_MissingAudio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent for a missing file")
	})
	_, err := client.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: "/does/not/exist.mp3"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing audio = %v, want ErrInvalidInput", err)
	}
}

func TestMock_SyncAndAsync(t *testing.T) {
	m := NewMock()
	res, err := m.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: "a.mp3"})
	if err != nil || res.Async() || res.Text == "" {
		t.Errorf("sync mock: res=%+v err=%v", res, err)
	}

	m.AsyncMode = true
	res, err = m.Transcribe(context.Background(), domain.TranscribeRequest{AudioPath: "b.mp3"})
	if err != nil || !res.Async() {
		t.Errorf("async mock: res=%+v err=%v", res, err)
	}
	if len(m.Issued()) != 1 || m.Issued()[0] != res.CorrelationID {
		t.Error("async mock should record issued correlation ids")
	}
	if len(m.Calls()) != 2 {
		t.Errorf("mock recorded %d calls, want 2", len(m.Calls()))
	}
}

func TestMock_FailWith(t *testing.T) {
	m := NewMock()
	m.FailWith(domain.ErrProviderUnavailable)
	if _, err := m.Transcribe(context.Background(), domain.TranscribeRequest{}); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("first call = %v, want queued error", err)
	}
	if _, err := m.Transcribe(context.Background(), domain.TranscribeRequest{}); err != nil {
		t.Errorf("second call = %v, want success after queue drained", err)
	}
}
