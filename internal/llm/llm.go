package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Request is one structured reasoning call.
type Request struct {
	System string
	Prompt string
	// Schema describes the JSON object the caller expects back.
	Schema map[string]any
}

// Response carries the decoded JSON object and an optional self-reported confidence.
type Response struct {
	Content    map[string]any
	Confidence *float64
	Raw        string
}

// Reasoner abstracts the structured reasoning service.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (Response, error)
}

// Embedder abstracts the embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	// ErrNotImplemented is returned by the placeholder client.
	ErrNotImplemented = errors.New("LLM not implemented")
	// ErrMalformedOutput marks a response that did not contain a usable JSON object.
	ErrMalformedOutput = errors.New("malformed llm output")
)

// PlaceholderClient is a stub used when no provider is configured.
type PlaceholderClient struct{}

// Reason returns ErrNotImplemented.
func (PlaceholderClient) Reason(ctx context.Context, req Request) (Response, error) {
	_ = ctx
	_ = req
	return Response{}, ErrNotImplemented
}

// Embed returns ErrNotImplemented.
func (PlaceholderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotImplemented
}

// EmbedBatch returns ErrNotImplemented.
func (PlaceholderClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNotImplemented
}

// DecodeResponse turns raw model output into a Response. A top-level numeric
// "confidence" field in [0,1] is lifted into Response.Confidence.
func DecodeResponse(raw string) (Response, error) {
	body := ExtractJSON(raw)
	if strings.TrimSpace(body) == "" {
		return Response{Raw: raw}, fmt.Errorf("%w: no json object", ErrMalformedOutput)
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(body), &content); err != nil {
		return Response{Raw: raw}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	resp := Response{Content: content, Raw: raw}
	if v, ok := content["confidence"].(float64); ok && v >= 0 && v <= 1 {
		c := v
		resp.Confidence = &c
	}
	return resp, nil
}

var (
	_ Reasoner = PlaceholderClient{}
	_ Embedder = PlaceholderClient{}
)
