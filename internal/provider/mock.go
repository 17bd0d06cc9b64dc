package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
)

// ─── Mock Client (for tests and keyless development) ────────────────────────

// Mock implements domain.Transcriber without touching the network.
// By default every call succeeds synchronously with canned text; tests
// flip AsyncMode or queue errors to exercise the other paths.
type Mock struct {
	mu        sync.Mutex
	AsyncMode bool          // return correlation ids instead of inline text
	Text      string        // inline result text (default derived from path)
	errs      []error       // queued per-call errors, consumed in order
	calls     []domain.TranscribeRequest
	issued    []string // correlation ids handed out in async mode
}

var _ domain.Transcriber = (*Mock)(nil)

// NewMock creates a synchronous-mode mock.
func NewMock() *Mock { return &Mock{} }

// FailWith queues errors to return on the next calls, in order.
func (m *Mock) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Calls returns every request seen so far.
func (m *Mock) Calls() []domain.TranscribeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TranscribeRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Issued returns the correlation ids handed out in async mode.
func (m *Mock) Issued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.issued))
	copy(out, m.issued)
	return out
}

// Transcribe records the call and replies per the configured mode.
func (m *Mock) Transcribe(ctx context.Context, req domain.TranscribeRequest) (*domain.TranscribeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	if m.AsyncMode {
		id := "mock-" + uuid.New().String()[:8]
		m.issued = append(m.issued, id)
		return &domain.TranscribeResult{CorrelationID: id}, nil
	}

	text := m.Text
	if text == "" {
		text = fmt.Sprintf("transcript of %s", req.AudioPath)
	}
	return &domain.TranscribeResult{Text: text, Language: "en"}, nil
}
