// Package llm implements the figure explanation service on top of an
// OpenRouter-compatible chat-completions API with vision input.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "meta-llama/llama-3.2-90b-vision-instruct"
	defaultTimeout = 120 * time.Second
)

// Config configures the explanation client
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Stream requests an SSE response and assembles the deltas
	Stream bool
}

// Client handles communication with the chat-completions API
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	stream      bool
	httpClient  *http.Client
	logger      *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Response represents the API response structure
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// APIError is the error object some providers embed in a 200 response
type APIError struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

// NewClient creates a new explanation client
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		stream:      cfg.Stream,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Explain asks the model to explain one figure. Rate limits, server errors
// and transport failures are returned as transient errors.
func (c *Client) Explain(ctx context.Context, img domain.ImageAsset, contextText string) (string, error) {
	if c.apiKey == "" {
		return "", domain.ConfigError("explanation API key is not set", nil)
	}
	if len(img.Data) == 0 {
		return "", domain.ExplanationError("image has no data", nil).WithImage(img.ID)
	}

	body, err := json.Marshal(c.buildRequest(img, contextText))
	if err != nil {
		return "", domain.ExplanationError("Failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.ExplanationError("Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/spherical/paper-video")
	req.Header.Set("X-Title", "Paper Video Narrator")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.CancelledError("explanation request cancelled", ctx.Err())
		}
		return "", domain.Transient(domain.ExplanationError("Failed to send request", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := domain.ExplanationError(
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
		if shouldRetry(resp.StatusCode) {
			return "", domain.Transient(apiErr)
		}
		return "", apiErr
	}

	var text string
	if c.stream {
		text, err = NewStreamParser(resp.Body).Collect()
	} else {
		text, err = parseResponse(resp.Body)
	}
	if err != nil {
		var ue *upstreamError
		if errors.As(err, &ue) {
			return "", domain.Transient(domain.ExplanationError("Provider reported an error", err))
		}
		return "", domain.ExplanationError("Failed to parse response", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ExplanationError("model returned an empty explanation", nil)
	}

	c.logger.WithContext(ctx).Debug().
		Stringer("image", img.ID).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Figure explained")

	return text, nil
}

// buildRequest constructs the API request with the image inlined as a data URL
func (c *Client) buildRequest(img domain.ImageAsset, contextText string) *Request {
	imageURL := fmt.Sprintf("data:%s;base64,%s", mimeType(img.Format), base64.StdEncoding.EncodeToString(img.Data))

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type: "text",
				Text: BuildPrompt(contextText),
			},
			{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: imageURL,
				},
			},
		},
	}

	return &Request{
		Model:       c.model,
		Messages:    []Message{msg},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      c.stream,
	}
}

// BuildPrompt creates the figure explanation prompt
func BuildPrompt(contextText string) string {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return "Explain this figure from a research paper."
	}
	return "Explain this figure from a research paper. " + contextText
}

func mimeType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// parseResponse reads a non-streaming completion
func parseResponse(body io.Reader) (string, error) {
	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &upstreamError{message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// upstreamError is a provider error delivered inside a successful HTTP response
type upstreamError struct {
	message string
}

func (e *upstreamError) Error() string {
	return "upstream error: " + e.message
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
