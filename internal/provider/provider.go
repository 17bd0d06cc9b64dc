// Package provider wraps the external speech-to-text API.
// The Client speaks the provider's HTTP contract; Mock stands in when no
// API key is configured so the rest of the pipeline runs without network.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
)

// Config configures the provider HTTP client.
type Config struct {
	BaseURL string        // API root, e.g. https://api.elevenlabs.io
	APIKey  string        // dashboard API key
	ModelID string        // speech-to-text model identifier
	Timeout time.Duration // per-call timeout (default 120s)
	Webhook bool          // request async delivery to the registered callback URL
}

// DefaultConfig returns production defaults. The callback URL itself is
// registered on the provider's dashboard, not sent per request; async
// results are matched back by correlation id.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.elevenlabs.io",
		ModelID: "scribe_v1",
		Timeout: 120 * time.Second,
		Webhook: true,
	}
}

// Client calls the speech-to-text HTTP API. Implements domain.Transcriber.
type Client struct {
	config Config
	http   *http.Client
}

var _ domain.Transcriber = (*Client)(nil)

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// transcribeResponse is the provider's reply. A synchronous call carries
// text; an asynchronous one carries only the request id used to correlate
// the later webhook.
type transcribeResponse struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	RequestID    string `json:"request_id"`
}

// Transcribe uploads one segment's audio and returns either the inline
// text or a correlation id for the webhook. Errors are classified into
// the domain taxonomy so the circuit breaker and queue can react.
func (c *Client) Transcribe(ctx context.Context, req domain.TranscribeRequest) (*domain.TranscribeResult, error) {
	if req.AudioPath == "" {
		return nil, fmt.Errorf("%w: empty audio path", domain.ErrInvalidInput)
	}

	body, contentType, err := c.buildForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/speech-to-text", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("xi-api-key", c.config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}

	if tr.RequestID != "" && tr.Text == "" {
		return &domain.TranscribeResult{CorrelationID: tr.RequestID}, nil
	}
	return &domain.TranscribeResult{Text: tr.Text, Language: tr.LanguageCode}, nil
}

// buildForm assembles the multipart upload: the audio file plus the
// model id and webhook flag. Segments are bounded in length, so the
// form is built in memory.
func (c *Client) buildForm(req domain.TranscribeRequest) (io.Reader, string, error) {
	data, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read audio: %v", domain.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrEmptySource, req.AudioPath)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("build form: %w", err)
	}
	_ = mw.WriteField("model_id", c.config.ModelID)
	if c.config.Webhook {
		_ = mw.WriteField("webhook", "true")
	}
	if req.Language != "" {
		_ = mw.WriteField("language_code", req.Language)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("build form: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

// classifyStatus maps HTTP failures onto the domain error taxonomy.
func classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrProviderRateLimited, snippet)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, snippet)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", domain.ErrProviderTimeout, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, snippet)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
