package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"slack-responder/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4.1"
	defaultTimeout = 30 * time.Second
)

var reasoningSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

// TokenSource resolves a secret token by parameter name.
// *paramstore.Client satisfies this interface.
type TokenSource interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// TimeoutError is returned when a completion does not finish within the
// client's timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("openai: completion timed out after %s", e.After)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// GenerationError captures any other failed completion. StatusCode is zero
// when the failure happened before an HTTP response was received.
type GenerationError struct {
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openai: generation failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openai: generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is the LLM gateway: it sends role-tagged messages to an
// OpenAI-compatible Chat Completions endpoint and returns plain text.
// It never retries; callers own retry policy.
type Client struct {
	baseURL     string
	model       string
	timeout     time.Duration
	httpClient  *http.Client
	tokens      TokenSource
	paramPrefix string

	apiMu sync.Mutex
	api   *sdk.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Client whose API key is read through tokens on the
// first successful completion and reused for the lifetime of the process.
func NewClient(tokens TokenSource, paramPrefix string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("openai: token source must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		timeout:     defaultTimeout,
		tokens:      tokens,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// resolveAPI builds the SDK client on first use. A failed key lookup is not
// kept, so the next completion tries again.
func (c *Client) resolveAPI(ctx context.Context) (*sdk.Client, error) {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	if c.api != nil {
		return c.api, nil
	}
	key, err := c.tokens.GetToken(ctx, c.tokenParameterName())
	if err != nil {
		return nil, fmt.Errorf("openai: resolve api key: %w", err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(apiBaseURL(c.baseURL)),
		option.WithMaxRetries(0),
	}
	if c.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(c.httpClient))
	}
	api := sdk.NewClient(opts...)
	c.api = &api
	return c.api, nil
}

// apiBaseURL normalises the configured base so the SDK resolves
// "chat/completions" under the /v1 path.
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

// Complete returns the model's reply to messages with any reasoning spans
// removed.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", &GenerationError{Err: errors.New("messages must not be empty")}
	}
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toParams(messages),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{After: c.timeout}
		}
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", &GenerationError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Err: errors.New("no choices in response")}
	}
	return StripReasoning(resp.Choices[0].Message.Content), nil
}

// StripReasoning removes every <think>…</think> span, including spans that
// cross lines, and trims the remainder.
func StripReasoning(s string) string {
	return strings.TrimSpace(reasoningSpan.ReplaceAllString(s, ""))
}

func toParams(messages []domain.ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
