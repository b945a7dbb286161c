// Package mistral provides a streaming client for the Mistral chat completions API.
package mistral

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/domain/chat"
)

// DefaultBaseURL is the Mistral API root.
const DefaultBaseURL = "https://api.mistral.ai/v1"

// ErrMissingAPIKey is returned by Stream when no API key is configured.
var ErrMissingAPIKey = errors.New("mistral API key is not configured")

// Client is a Mistral API client.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Config represents Mistral client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// APIError represents an error response from the Mistral API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return "mistral API error " + http.StatusText(e.Status) + ": " + e.Message
}

// New creates a new Mistral client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		// Streams are bounded by the request context only.
		httpClient: &http.Client{},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Stream sends messages and yields the reply as it is generated.
// Reference: https://docs.mistral.ai/api/#tag/chat/operation/chat_completion_v1_chat_completions_post
func (c *Client) Stream(ctx context.Context, messages []chat.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !c.Configured() {
			yield("", ErrMissingAPIKey)
			return
		}

		body, err := c.open(ctx, messages)
		if err != nil {
			yield("", err)
			return
		}
		defer body.Close()

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield("", errors.Wrap(err, "failed to read stream"))
				return
			}

			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				if data == "[DONE]" {
					return
				}

				var chunk streamChunk
				if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
					zlog.Warn().Msgf("failed to parse stream chunk: data=%q error=%v", data, jsonErr)
				} else if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
					if !yield(chunk.Choices[0].Delta.Content, nil) {
						return
					}
				}
			}

			if err != nil {
				// EOF without [DONE]
				return
			}
		}
	}
}

// open starts a streaming completion and returns the event stream body.
func (c *Client) open(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	zlog.Debug().Msgf("sending chat completion: model=%s messages=%d", c.model, len(messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Message: string(b)}
	}

	return resp.Body, nil
}
