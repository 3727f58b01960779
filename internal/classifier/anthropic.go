// Package classifier asks a generative text service to structure project content.
//
// Every answer is treated as untrusted: it is extracted, decoded and validated
// before use, and any failure yields a deterministic fallback instead of an error.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/logging"
	"github.com/pbaille/folio/internal/retry"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Sampling temperature sent with every request. Answers are cached by input
// signature, so variety between runs never reaches the output documents.
const temperature = 1.0

var (
	// ErrInvalidResponse marks an answer that could not be decoded or failed validation
	ErrInvalidResponse = errors.New("invalid response")

	errDisabled = errors.New("generative service not configured")
)

// Stats counts service calls and fallbacks for one run
type Stats struct {
	Calls     int
	Fallbacks int
}

// Classifier structures content via the Anthropic Messages API
type Classifier struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	retry    retry.Config
	breaker  *gobreaker.CircuitBreaker

	mu    sync.Mutex
	stats Stats
}

// Option configures a Classifier
type Option func(*Classifier)

// WithEndpoint overrides the Messages API URL
func WithEndpoint(url string) Option {
	return func(c *Classifier) { c.endpoint = url }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Classifier) { c.client = client }
}

// WithRetry overrides the backoff used for transient failures
func WithRetry(cfg retry.Config) Option {
	return func(c *Classifier) { c.retry = cfg }
}

// New creates a Classifier. With an empty apiKey every call returns its fallback.
func New(apiKey, model string, opts ...Option) *Classifier {
	c := &Classifier{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicAPI,
		client:   &http.Client{Timeout: 2 * time.Minute},
		retry:    retry.DefaultConfig(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "anthropic",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a service key is configured
func (c *Classifier) Enabled() bool {
	return c.apiKey != ""
}

// Stats returns call and fallback counts
func (c *Classifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// GroupLayouts assigns every media item to exactly one layout group.
// It never fails: a missing, broken or invalid answer yields FallbackLayouts.
func (c *Classifier) GroupLayouts(ctx context.Context, media []domain.MediaItem) []domain.LayoutGroup {
	if len(media) == 0 {
		return nil
	}

	groups, err := c.groupLayouts(ctx, media)
	if err != nil {
		c.fellBack(ctx, "layout", err)
		return FallbackLayouts(media)
	}
	return groups
}

func (c *Classifier) groupLayouts(ctx context.Context, media []domain.MediaItem) ([]domain.LayoutGroup, error) {
	prompt, err := buildLayoutPrompt(media)
	if err != nil {
		return nil, err
	}
	resp, err := c.complete(ctx, prompt, 2048)
	if err != nil {
		return nil, err
	}
	return parseLayouts(resp, media)
}

// Narrate decomposes a project's text into a narrative.
// It never fails: a missing, broken or invalid answer yields FallbackNarrative.
func (c *Classifier) Narrate(ctx context.Context, n domain.Node, media []domain.MediaItem) domain.Narrative {
	narrative, err := c.narrate(ctx, n, media)
	if err != nil {
		c.fellBack(ctx, "narrative", err)
		return FallbackNarrative(n)
	}
	return narrative
}

func (c *Classifier) narrate(ctx context.Context, n domain.Node, media []domain.MediaItem) (domain.Narrative, error) {
	prompt, err := buildNarrativePrompt(n, media)
	if err != nil {
		return domain.Narrative{}, err
	}
	resp, err := c.complete(ctx, prompt, 4096)
	if err != nil {
		return domain.Narrative{}, err
	}
	return parseNarrative(resp, n)
}

func (c *Classifier) fellBack(ctx context.Context, what string, err error) {
	c.mu.Lock()
	c.stats.Fallbacks++
	c.mu.Unlock()

	if errors.Is(err, errDisabled) {
		logging.WithContext(ctx).Debug("using fallback", logging.String("derivation", what))
		return
	}
	logging.WithContext(ctx).Warn("generative service failed, using fallback",
		logging.String("derivation", what),
		logging.Err(err),
	)
}

// complete sends one prompt through the breaker, retrying transient failures
func (c *Classifier) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", errDisabled
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return retry.DoWithResult(ctx, c.retry, func() (string, error) {
			c.mu.Lock()
			c.stats.Calls++
			c.mu.Unlock()
			return c.callAPI(ctx, prompt, maxTokens)
		})
	})
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	return out.(string), nil
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Classifier) callAPI(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqBody := apiRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
		if retry.RetryableStatus(resp.StatusCode) {
			return "", retry.Retryable(err)
		}
		return "", err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	var text bytes.Buffer
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response")
	}

	return text.String(), nil
}
