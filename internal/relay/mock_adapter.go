package relay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter implements Adapter for testing. It records sent messages and
// replies, and allows simulating inbound messages and invocations.
type MockAdapter struct {
	mu          sync.Mutex
	connected   bool
	closed      bool
	inbound     chan InboundMessage
	invocations chan Invocation
	sent        []OutboundMessage
	deferred    []Invocation
	edits       map[string]string // invocation token -> reply text
	ephemerals  map[string][]string
	identity    Identity

	// SendErr, when set, is returned by Send.
	SendErr error
}

// NewMockAdapter creates a MockAdapter with buffered event channels.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound:     make(chan InboundMessage, 100),
		invocations: make(chan Invocation, 100),
		edits:       make(map[string]string),
		ephemerals:  make(map[string][]string),
	}
}

// SetIdentity sets the bot identity reported by BotIdentity.
func (m *MockAdapter) SetIdentity(id Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = id
}

// BotIdentity implements BotIdentifier.
func (m *MockAdapter) BotIdentity() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Invocations returns the invocation channel. Must be called after Connect.
func (m *MockAdapter) Invocations(ctx context.Context) (<-chan Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.invocations, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Defer records the deferred invocation.
func (m *MockAdapter) Defer(ctx context.Context, inv Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.deferred = append(m.deferred, inv)
	return nil
}

// EditReply records the deferred-reply edit keyed by invocation token.
func (m *MockAdapter) EditReply(ctx context.Context, inv Invocation, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.edits[inv.Token] = text
	return nil
}

// ReplyEphemeral records the ephemeral reply keyed by invocation token.
func (m *MockAdapter) ReplyEphemeral(ctx context.Context, inv Invocation, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.ephemerals[inv.Token] = append(m.ephemerals[inv.Token], text)
	return nil
}

// Close shuts down the mock adapter and closes the event channels.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	close(m.invocations)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// SimulateInvocation sends an invocation as if a slash command was run.
func (m *MockAdapter) SimulateInvocation(inv Invocation) {
	m.invocations <- inv
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// DeferredCount returns the number of deferred invocations.
func (m *MockAdapter) DeferredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred)
}

// ReplyFor returns the deferred-reply text recorded for an invocation token.
func (m *MockAdapter) ReplyFor(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.edits[token]
	return text, ok
}

// EphemeralsFor returns the ephemeral replies recorded for a token.
func (m *MockAdapter) EphemeralsFor(token string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ephemerals[token]))
	copy(out, m.ephemerals[token])
	return out
}
