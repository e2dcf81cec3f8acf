package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"research-backend/internal/llm"
	"research-backend/internal/shared/telemetry"
)

const defaultBaseURL = "https://api.openai.com/v1"

var (
	apiURL        = defaultBaseURL + "/chat/completions"
	embeddingsURL = defaultBaseURL + "/embeddings"
)

// Options configures a Client.
type Options struct {
	APIKey            string
	Model             string
	EmbeddingModel    string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the default client, e.g. one carrying an OAuth2 transport.
	HTTPClient *http.Client
}

// Client implements llm.Reasoner and llm.Embedder against an OpenAI-compatible API.
type Client struct {
	apiKey         string
	model          string
	embeddingModel string
	chatURL        string
	embedURL       string
	httpClient     *http.Client
	limiter        *rate.Limiter
}

// NewClient constructs a client for the public OpenAI endpoint.
func NewClient(apiKey, model string) (*Client, error) {
	return NewClientWithOptions(Options{APIKey: apiKey, Model: model})
}

// NewClientWithOptions constructs a client from explicit options.
func NewClientWithOptions(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(opts.APIKey) == "" && opts.HTTPClient == nil {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout()}
	}

	c := &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		model:          strings.TrimSpace(opts.Model),
		embeddingModel: strings.TrimSpace(opts.EmbeddingModel),
		httpClient:     httpClient,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = "text-embedding-3-small"
	}

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base != "" && base != defaultBaseURL {
		c.chatURL = base + "/chat/completions"
		c.embedURL = base + "/embeddings"
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

func requestTimeout() time.Duration {
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return timeout
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *usage    `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage *usage    `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

// Reason sends one JSON-mode chat completion and decodes the returned object.
func (c *Client) Reason(ctx context.Context, req llm.Request) (llm.Response, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return llm.Response{}, err
	}
	promptHash := hashPromptString(promptStringFromMessages(messages))

	useTemp := !omitTemperature(c.model)
	content, u, err := c.chatOnce(ctx, messages, useTemp)
	if err != nil && useTemp && isTemperatureUnsupported(err) {
		telemetry.Warn("llm.temperature.unsupported", map[string]any{"model": c.model})
		content, u, err = c.chatOnce(ctx, messages, false)
	}
	if err != nil {
		return llm.Response{}, err
	}
	logUsage("llm.response", c.model, promptHash, u)

	resp, err := llm.DecodeResponse(content)
	if err != nil {
		return resp, fmt.Errorf("openai: %w", err)
	}
	return resp, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(embeddingRequest{Model: c.embeddingModel, Input: texts})
	if err != nil {
		return nil, err
	}
	body, status, err := c.post(ctx, c.embeddingsEndpoint(), payload)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openai embeddings parse: %w", err)
	}
	if err := responseError(status, parsed.Error); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	logUsage("llm.embed", c.embeddingModel, "", parsed.Usage)
	return out, nil
}

func (c *Client) chatOnce(ctx context.Context, messages []chatMessage, withTemperature bool) (string, *usage, error) {
	reqBody := chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	if withTemperature {
		temp := float32(0)
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, err
	}

	body, status, err := c.post(ctx, c.chatEndpoint(), payload)
	if err != nil {
		return "", nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, fmt.Errorf("openai response parse: %w", err)
	}
	if err := responseError(status, parsed.Error); err != nil {
		return "", nil, err
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", nil, fmt.Errorf("openai response empty content")
	}
	return content, parsed.Usage, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("openai rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, 0, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) chatEndpoint() string {
	if c.chatURL != "" {
		return c.chatURL
	}
	return apiURL
}

func (c *Client) embeddingsEndpoint() string {
	if c.embedURL != "" {
		return c.embedURL
	}
	return embeddingsURL
}

func responseError(status int, apiErr *apiError) error {
	switch {
	case apiErr != nil && status >= 400:
		return fmt.Errorf("openai http status %d: %s (%s)", status, apiErr.Message, apiErr.Type)
	case apiErr != nil:
		return fmt.Errorf("openai error: %s (%s)", apiErr.Message, apiErr.Type)
	case status >= 400:
		return fmt.Errorf("openai http status %d", status)
	}
	return nil
}

func buildMessages(req llm.Request) ([]chatMessage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("openai: empty prompt")
	}
	system := strings.TrimSpace(req.System)
	if system == "" {
		system = "You are a research analysis engine. Respond with JSON only."
	}
	messages := []chatMessage{{Role: "system", Content: system}}
	if len(req.Schema) > 0 {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("openai: encode schema: %w", err)
		}
		messages = append(messages, chatMessage{
			Role:    "developer",
			Content: "Return a single JSON object matching this schema. Never omit keys.\n" + string(schema),
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	return messages, nil
}

func omitTemperature(model string) bool {
	if isGPT5(model) {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(model))
	for _, m := range strings.Split(os.Getenv("LLM_NO_TEMP0_MODELS"), ",") {
		if strings.ToLower(strings.TrimSpace(m)) == normalized && normalized != "" {
			return true
		}
	}
	return false
}

func isTemperatureUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unsupported value") && strings.Contains(msg, "temperature")
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

func logUsage(event, model, promptHash string, u *usage) {
	fields := map[string]any{"model": model}
	if promptHash != "" {
		fields["prompt_hash"] = promptHash
	}
	if u != nil {
		fields["prompt_tokens"] = u.PromptTokens
		fields["completion_tokens"] = u.CompletionTokens
		fields["total_tokens"] = u.TotalTokens
	}
	telemetry.Info(event, fields)
}

func promptStringFromMessages(messages []chatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func hashPromptString(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

var (
	_ llm.Reasoner = (*Client)(nil)
	_ llm.Embedder = (*Client)(nil)
)
