// Package generate wraps the local Ollama chat endpoint. It turns an ordered
// message sequence into a /api/chat request and hands back the generated
// text. Transport failures and malformed responses surface as ErrUnavailable
// and are never retried here.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/parley/internal/chat"
)

// Defaults for the local Ollama endpoint.
const (
	DefaultHost    = "http://127.0.0.1:11434"
	DefaultModel   = "gemma3:latest"
	DefaultTimeout = 2 * time.Minute
)

// ErrUnavailable marks an unreachable, erroring, or malformed generation
// endpoint. Callers surface it to the user; they do not retry.
var ErrUnavailable = errors.New("generate: endpoint unavailable")

// Client talks to an Ollama server's chat API.
type Client struct {
	host       string
	model      string
	httpClient *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	Host    string        // defaults to DefaultHost
	Model   string        // defaults to DefaultModel
	Timeout time.Duration // defaults to DefaultTimeout
	// For testing: inject a custom HTTP client.
	HTTPClient *http.Client
}

// NewClient creates an Ollama chat client.
func NewClient(opts ClientOpts) *Client {
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

// Model returns the fixed model identifier requests are made with.
func (c *Client) Model() string { return c.model }

// wireMessage is one {role, content} pair on the Ollama wire.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Chat sends the ordered message list as generation context and returns the
// generated text. Null-content messages are skipped on the wire; they are
// bookkeeping sentinels, not model input.
func (c *Client) Chat(ctx context.Context, msgs []*chat.Message) (string, error) {
	wire := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		content, ok := m.Content()
		if !ok {
			continue
		}
		wire = append(wire, wireMessage{Role: string(m.Role()), Content: content})
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: wire,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("generate: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("generate: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %s", ErrUnavailable, truncate(string(body), 200))
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error)
	}
	if parsed.Message.Content == "" {
		return "", fmt.Errorf("%w: empty message in response", ErrUnavailable)
	}

	return parsed.Message.Content, nil
}

// truncate returns s cut to at most maxChars runes.
func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
