// Package discord implements the relay Adapter for Discord using the
// Gateway WebSocket, plus slash-command registration.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/parley/internal/relay"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.InteractionResponseEdit(interaction, newresp, options...)
}
func (r *realSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.FollowupMessageCreate(interaction, wait, data, options...)
}
func (r *realSession) ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return r.s.ApplicationCommandBulkOverwrite(appID, guildID, commands, options...)
}

// pendingInteraction tracks an interaction we may still reply to.
type pendingInteraction struct {
	interaction *discordgo.Interaction
	deferred    bool
}

// Adapter implements relay.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess        session
	botToken    string
	channelID   string // default channel for messages
	mu          sync.Mutex
	connected   bool
	closed      bool
	identity    relay.Identity
	inbound     chan relay.InboundMessage
	invocations chan relay.Invocation
	// done is closed on Close and gates handler channel sends.
	done        chan struct{}
	pending     map[string]*pendingInteraction // key: interaction token
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // default channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}

	a := &Adapter{
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		inbound:     make(chan relay.InboundMessage, 100),
		invocations: make(chan relay.Invocation, 100),
		done:        make(chan struct{}),
		pending:     make(map[string]*pendingInteraction),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}

	if opts.Session != nil {
		a.sess = opts.Session
	}

	return a, nil
}

// ensureSession builds the real discordgo session if none was injected.
func (a *Adapter) ensureSession() error {
	if a.sess != nil {
		return nil
	}
	dg, err := discordgo.New("Bot " + a.botToken)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	a.sess = &realSession{s: dg}
	return nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if err := a.ensureSession(); err != nil {
		return err
	}

	// Capture the bot identity on connect/reconnect.
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.identity = relay.Identity{
			UserID:      r.User.ID,
			DisplayName: displayNameOf(r.User),
		}
		a.mu.Unlock()
		log.Printf("discord: ready, logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Resumed) {
		log.Printf("discord: gateway session resumed")
	})

	// Channel messages and slash interactions.
	a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.handleInteraction(i)
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	return a.inbound, nil
}

// Invocations returns the slash invocation channel. Must be called after Connect.
func (a *Adapter) Invocations(ctx context.Context) (<-chan relay.Invocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	return a.invocations, nil
}

// Send delivers a message to a Discord channel.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSend(channelID, msg.Text)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Defer acknowledges an invocation with a deferred channel-message response,
// claiming the long (15 minute) reply window for generation.
func (a *Adapter) Defer(ctx context.Context, inv relay.Invocation) error {
	p, err := a.lookupPending(inv)
	if err != nil {
		return err
	}
	err = a.retryOnRateLimit(ctx, func() error {
		return a.sess.InteractionRespond(p.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
	})
	if err != nil {
		return fmt.Errorf("discord: defer reply: %w", err)
	}
	a.mu.Lock()
	p.deferred = true
	a.mu.Unlock()
	return nil
}

// EditReply fills in a previously deferred reply.
func (a *Adapter) EditReply(ctx context.Context, inv relay.Invocation, text string) error {
	p, err := a.lookupPending(inv)
	if err != nil {
		return err
	}
	err = a.retryOnRateLimit(ctx, func() error {
		_, editErr := a.sess.InteractionResponseEdit(p.interaction, &discordgo.WebhookEdit{
			Content: &text,
		})
		return editErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit reply: %w", err)
	}
	return nil
}

// ReplyEphemeral sends a notice visible only to the invoking user. For an
// already-acknowledged interaction this is a follow-up message; otherwise it
// is the interaction's first response.
func (a *Adapter) ReplyEphemeral(ctx context.Context, inv relay.Invocation, text string) error {
	p, err := a.lookupPending(inv)
	if err != nil {
		return err
	}
	a.mu.Lock()
	deferred := p.deferred
	a.mu.Unlock()

	err = a.retryOnRateLimit(ctx, func() error {
		if deferred {
			_, followErr := a.sess.FollowupMessageCreate(p.interaction, true, &discordgo.WebhookParams{
				Content: text,
				Flags:   discordgo.MessageFlagsEphemeral,
			})
			return followErr
		}
		return a.sess.InteractionRespond(p.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: text,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("discord: ephemeral reply: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection. The event channels
// stay open (consumers stop via context cancellation); closing done makes
// any in-flight handler send bail out instead of panicking.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.done)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotIdentity returns the bot's identity (available after Connect).
func (a *Adapter) BotIdentity() relay.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// SetBotIdentity sets the identity (used in tests and for self-filtering).
func (a *Adapter) SetBotIdentity(id relay.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identity = id
}

// lookupPending resolves the stored interaction for an invocation token.
func (a *Adapter) lookupPending(inv relay.Invocation) (*pendingInteraction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[inv.Token]
	if !ok {
		return nil, fmt.Errorf("discord: unknown interaction token")
	}
	return p, nil
}

// handleMessage converts a Discord message event to an InboundMessage.
// The bot's own messages, and other bots', are filtered here so sessions
// never react to published answers.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	a.mu.Lock()
	botID := a.identity.UserID
	a.mu.Unlock()

	if m.Author.ID == botID || m.Author.Bot {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)

	select {
	case a.inbound <- relay.InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  displayNameOf(m.Author),
		Text:      m.Content,
		Timestamp: ts,
	}:
	case <-a.done:
	}
}

// handleInteraction converts a slash-command interaction to an Invocation.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	options := make(map[string]string, len(data.Options))
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			options[opt.Name] = opt.StringValue()
		}
	}

	var user *discordgo.User
	var joinedAt time.Time
	if i.Member != nil {
		user = i.Member.User
		joinedAt = i.Member.JoinedAt
	} else {
		user = i.User
	}
	if user == nil {
		return
	}

	a.mu.Lock()
	a.pending[i.Token] = &pendingInteraction{interaction: i.Interaction}
	a.mu.Unlock()

	select {
	case a.invocations <- relay.Invocation{
		Platform:  "discord",
		ChannelID: i.ChannelID,
		UserID:    user.ID,
		UserName:  displayNameOf(user),
		Command:   data.Name,
		Options:   options,
		Token:     i.Token,
		JoinedAt:  joinedAt,
	}:
	case <-a.done:
	}
}

// displayNameOf picks the friendliest name Discord gives us.
func displayNameOf(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}

		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}

		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
