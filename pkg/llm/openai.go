package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// OpenAIOptions configures the model client adapter.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string // e.g. https://api.openai.com/v1
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAI streams completions from any OpenAI-compatible /chat/completions
// endpoint.
type OpenAI struct {
	opts   OpenAIOptions
	client *http.Client
}

// NewOpenAI returns a model client adapter. The http client carries no
// overall timeout; streams are bounded by the caller's context.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	return &OpenAI{
		opts: opts,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Available reports whether a usable credential is configured. Placeholder
// keys left over from a sample .env do not count.
func (o *OpenAI) Available() bool {
	k := strings.TrimSpace(o.opts.APIKey)
	return k != "" && k != "your-key-here" && k != "your-api-key" && k != "changeme"
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []models.Turn `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion posts the turns with stream:true and forwards each content
// delta. A non-2xx response or connection failure is returned synchronously;
// failures after streaming begins surface as a Delta with Err set.
func (o *OpenAI) StreamCompletion(ctx context.Context, turns []models.Turn) (<-chan Delta, error) {
	reqBody := chatCompletionRequest{
		Model:       o.opts.Model,
		Messages:    turns,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		Stream:      true,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}
	url := strings.TrimRight(o.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.opts.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("completion request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ch := make(chan Delta, 16)
	go o.consume(ctx, resp.Body, ch)
	return ch, nil
}

// consume parses the provider's SSE body line by line and forwards content
// deltas. The body is always closed and the channel always closed on return.
func (o *OpenAI) consume(ctx context.Context, body io.ReadCloser, ch chan<- Delta) {
	defer close(ch)
	defer body.Close()

	send := func(d Delta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			send(Delta{Done: true})
			return
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			logger.Warn("model_chunk_unparseable", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if c := chunk.Choices[0].Delta.Content; c != "" {
			if !send(Delta{Content: c}) {
				return
			}
		}
		if chunk.Choices[0].FinishReason != "" {
			send(Delta{Done: true})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(Delta{Err: fmt.Errorf("model stream interrupted: %w", err)})
		return
	}
	// stream ended without a terminator; treat as complete
	send(Delta{Done: true})
}
