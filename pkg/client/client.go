// Package client is the Go SDK for a chatrelay server: thread CRUD, the
// streaming consumer, and the reconciler that keeps a local message view
// consistent with the stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/relay"
)

// Client talks to one chatrelay server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// StreamTimeout bounds each chat stream. Zero means the consumer
	// default.
	StreamTimeout time.Duration
	// Reconciler, when set, is kept in sync by StreamChat and
	// DeleteThread.
	Reconciler *Reconciler
	// OnEvent, when set, observes stream events after the reconciler has
	// applied them.
	OnEvent func(StreamEvent)
}

// New returns a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(method, path, resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func apiError(method, path string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Error != "" {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
}

// ListThreads returns thread summaries, most recently updated first.
func (c *Client) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var out struct {
		Threads []models.Thread `json:"threads"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/threads", nil, &out); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

// CreateThread creates a thread; title may be empty.
func (c *Client) CreateThread(ctx context.Context, title string) (models.Thread, error) {
	var out struct {
		Thread models.Thread `json:"thread"`
	}
	in := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", in, &out); err != nil {
		return models.Thread{}, err
	}
	return out.Thread, nil
}

// GetThread returns the thread with its messages.
func (c *Client) GetThread(ctx context.Context, id string) (models.Thread, error) {
	var out struct {
		Thread models.Thread `json:"thread"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+id, nil, &out); err != nil {
		return models.Thread{}, err
	}
	return out.Thread, nil
}

// RenameThread sets the thread title.
func (c *Client) RenameThread(ctx context.Context, id, title string) (models.Thread, error) {
	var out struct {
		Thread models.Thread `json:"thread"`
	}
	in := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPut, "/threads/"+id, in, &out); err != nil {
		return models.Thread{}, err
	}
	return out.Thread, nil
}

// DeleteThread removes the thread and tells the reconciler, so a view bound
// to that conversation resets instead of streaming into a deleted thread.
func (c *Client) DeleteThread(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/threads/"+id, nil, nil); err != nil {
		return err
	}
	if c.Reconciler != nil {
		c.Reconciler.HandleThreadDeleted(id)
	}
	return nil
}

// StreamChat sends one user turn and consumes the streamed response into the
// attached reconciler. It returns the conversation id and the terminal
// outcome; the reconciler's visible state is updated on every path,
// including failures before the stream opens.
func (c *Client) StreamChat(ctx context.Context, content string) (string, error) {
	rec := c.Reconciler
	if rec == nil {
		rec = NewReconciler()
	}
	rec.BeginSend(content)

	req := relay.ChatRequest{
		Messages:       turnsForSend(rec.Messages()),
		ConversationID: rec.ConversationID(),
	}
	b, err := json.Marshal(req)
	if err != nil {
		rec.FailActive()
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/stream", bytes.NewReader(b))
	if err != nil {
		rec.FailActive()
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		rec.FailActive()
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		rec.FailActive()
		return "", apiError(http.MethodPost, "/chat/stream", resp)
	}

	convID, err := ConsumeStream(resp.Body, ConsumeOptions{
		Timeout: c.StreamTimeout,
		OnEvent: func(ev StreamEvent) {
			rec.Apply(ev)
			if c.OnEvent != nil {
				c.OnEvent(ev)
			}
		},
	})
	if err != nil {
		return convID, err
	}
	return convID, nil
}

// turnsForSend projects the visible list onto the request shape, skipping
// the still-empty placeholder and anything already failed.
func turnsForSend(msgs []models.Message) []models.Turn {
	out := make([]models.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleAssistant && m.Status == models.StatusSending {
			continue
		}
		if m.Status == models.StatusError {
			continue
		}
		out = append(out, models.Turn{Role: m.Role, Content: m.Content})
	}
	return out
}
