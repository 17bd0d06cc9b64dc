package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/assembler"
)

// Notifier POSTs completion payloads to client callback URLs. Any 2xx
// response counts as delivered; non-2xx and network failures are
// reported to the caller, which logs them without retrying (retry
// policy, if any, belongs to the client side).
type Notifier struct {
	http *http.Client
}

var _ assembler.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier with the given delivery timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{http: &http.Client{Timeout: timeout}}
}

// Notify delivers one payload.
func (n *Notifier) Notify(ctx context.Context, callbackURL string, payload assembler.Notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}
	return nil
}
