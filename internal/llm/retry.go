package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"research-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

// ShouldRetry reports whether err looks like a transient provider failure.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "http status 429") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

type retryingEmbedder struct {
	base  Embedder
	delay time.Duration
}

// NewRetryingEmbedder retries a transient embedding failure once after a short pause.
// Reasoning calls are not wrapped; step retries own that budget.
func NewRetryingEmbedder(base Embedder) Embedder {
	if base == nil {
		return nil
	}
	return retryingEmbedder{base: base, delay: retryBaseDelay}
}

func (r retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.base.Embed(ctx, text)
	if err == nil || !ShouldRetry(err) {
		return vec, err
	}
	if err := r.pause(ctx, err); err != nil {
		return nil, err
	}
	return r.base.Embed(ctx, text)
}

func (r retryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.base.EmbedBatch(ctx, texts)
	if err == nil || !ShouldRetry(err) {
		return vecs, err
	}
	if err := r.pause(ctx, err); err != nil {
		return nil, err
	}
	return r.base.EmbedBatch(ctx, texts)
}

func (r retryingEmbedder) pause(ctx context.Context, cause error) error {
	telemetry.Warn("llm.embed.retry", map[string]any{"attempt": 1, "error": cause})
	select {
	case <-time.After(r.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
