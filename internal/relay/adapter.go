// Package relay bridges chat platforms (Discord, Slack) to the local
// generation model: it pumps platform events into the session registry and
// publishes answers back.
package relay

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management, event delivery, and
// message sending for a single chat platform. Adapters filter out the bot's
// own messages (and other bots') before delivery, so the bot never reacts
// to its own published answers.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound channel messages. The channel is
	// closed when the context is cancelled or the adapter is closed.
	// Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Invocations returns a channel of slash-command invocations. Must only
	// be called after Connect.
	Invocations(ctx context.Context) (<-chan Invocation, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Defer acknowledges an invocation, claiming time for a slow reply.
	Defer(ctx context.Context, inv Invocation) error

	// EditReply fills in the deferred reply for an invocation.
	EditReply(ctx context.Context, inv Invocation, text string) error

	// ReplyEphemeral sends a failure or info notice visible only to the
	// invoking user, where the platform supports it.
	ReplyEphemeral(ctx context.Context, inv Invocation, text string) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a channel message received from the platform.
type InboundMessage struct {
	Platform  string    // e.g. "discord", "slack"
	ChannelID string    // platform-specific channel identifier
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable display name
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// Invocation represents a slash-command invocation.
type Invocation struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	Command   string            // e.g. "start-chat", "user"
	Options   map[string]string // command options by name
	Token     string            // platform handle for replying to this invocation
	JoinedAt  time.Time         // when the user joined the server (zero if unknown)
}

// Option returns the named invocation option, or "" if absent.
func (inv Invocation) Option(name string) string {
	return inv.Options[name]
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string // target channel; adapters may fall back to a default
	Text      string
}

// Identity is the bot's own platform identity, used for self-message
// filtering and for signing generated answers.
type Identity struct {
	UserID      string
	DisplayName string
}

// BotIdentifier is an optional interface adapters implement to expose the
// bot's identity once connected.
type BotIdentifier interface {
	BotIdentity() Identity
}
