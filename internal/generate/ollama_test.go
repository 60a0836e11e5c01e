package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zulandar/parley/internal/chat"
)

func testMessage(t *testing.T, role chat.Role, text string) *chat.Message {
	t.Helper()
	m, err := chat.New(chat.Params{Content: chat.Text(text), Role: role})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return m
}

func nullMessage(t *testing.T) *chat.Message {
	t.Helper()
	m, err := chat.New(chat.Params{Content: chat.NullText(), Role: chat.RoleUser})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return m
}

// newTestClient points a Client at an httptest server.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(ClientOpts{Host: srv.URL, Model: "test-model", HTTPClient: srv.Client()})
	return c, srv
}

// ---------------------------------------------------------------------------
// NewClient tests
// ---------------------------------------------------------------------------

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientOpts{})
	if c.host != DefaultHost {
		t.Errorf("expected default host, got %q", c.host)
	}
	if c.Model() != DefaultModel {
		t.Errorf("expected default model, got %q", c.Model())
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient(ClientOpts{Host: "http://example.test:11434/"})
	if c.host != "http://example.test:11434" {
		t.Errorf("expected trimmed host, got %q", c.host)
	}
}

// ---------------------------------------------------------------------------
// Chat tests
// ---------------------------------------------------------------------------

func TestChat_SendsOrderedMessagesAndReturnsAnswer(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "the answer"},
		})
	})

	msgs := []*chat.Message{
		testMessage(t, chat.RoleSystem, "persona"),
		testMessage(t, chat.RoleUser, "question"),
	}
	answer, err := c.Chat(context.Background(), msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("unexpected answer %q", answer)
	}

	if got.Model != "test-model" {
		t.Errorf("unexpected model %q", got.Model)
	}
	if got.Stream {
		t.Error("expected stream=false")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 wire messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "persona" {
		t.Errorf("unexpected first wire message: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "question" {
		t.Errorf("unexpected second wire message: %+v", got.Messages[1])
	}
}

func TestChat_SkipsNullContentOnWire(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "bye"},
		})
	})

	msgs := []*chat.Message{
		testMessage(t, chat.RoleSystem, "persona"),
		nullMessage(t),
		testMessage(t, chat.RoleSystem, "say goodbye"),
	}
	if _, err := c.Chat(context.Background(), msgs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected null message skipped, got %d wire messages", len(got.Messages))
	}
}

func TestChat_ServerErrorIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Chat(context.Background(), []*chat.Message{testMessage(t, chat.RoleUser, "hi")})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestChat_MalformedResponseIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	_, err := c.Chat(context.Background(), []*chat.Message{testMessage(t, chat.RoleUser, "hi")})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestChat_ErrorFieldIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	})
	_, err := c.Chat(context.Background(), []*chat.Message{testMessage(t, chat.RoleUser, "hi")})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestChat_EmptyAnswerIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": ""},
		})
	})
	_, err := c.Chat(context.Background(), []*chat.Message{testMessage(t, chat.RoleUser, "hi")})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestChat_UnreachableHostIsUnavailable(t *testing.T) {
	c := NewClient(ClientOpts{
		Host:       "http://127.0.0.1:1",
		HTTPClient: &http.Client{Timeout: 500 * time.Millisecond},
	})
	_, err := c.Chat(context.Background(), []*chat.Message{testMessage(t, chat.RoleUser, "hi")})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
