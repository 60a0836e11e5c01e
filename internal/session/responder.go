// Package session implements the conversational session lifecycle: the
// per-channel chat history, the generation request assembly, the time-boxed
// collection window, and the registry that owns one active session per
// channel.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/parley/internal/chat"
	"github.com/zulandar/parley/internal/prompt"
)

// ChatClient is the external generation endpoint: it takes an ordered
// message list and returns the generated text.
type ChatClient interface {
	Chat(ctx context.Context, msgs []*chat.Message) (string, error)
}

// fallbackAuthor is substituted for the user placeholder when a triggering
// message carries no author name.
const fallbackAuthor = "the user"

// Responder assembles generation requests from a history plus a triggering
// message and wraps the result back into a Message. It is stateless and
// shared safely by all sessions.
type Responder struct {
	client  ChatClient
	catalog *prompt.Catalog
	botName string
}

// ResponderOpts holds parameters for creating a Responder.
type ResponderOpts struct {
	Client  ChatClient
	Catalog *prompt.Catalog
	BotName string // display name answers are signed with
}

// NewResponder creates a Responder.
func NewResponder(opts ResponderOpts) (*Responder, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("session: responder: chat client is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("session: responder: prompt catalog is required")
	}
	if opts.BotName == "" {
		return nil, fmt.Errorf("session: responder: bot name is required")
	}
	return &Responder{
		client:  opts.Client,
		catalog: opts.Catalog,
		botName: opts.BotName,
	}, nil
}

// BotName returns the display name answers are signed with.
func (r *Responder) BotName() string { return r.botName }

// Persona builds the system message that seeds a new session's history,
// with the assistant placeholder resolved to the bot's display name.
func (r *Responder) Persona() (*chat.Message, error) {
	m, err := chat.New(chat.Params{Content: chat.Text(r.catalog.Persona())})
	if err != nil {
		return nil, fmt.Errorf("session: build persona: %w", err)
	}
	m.SubstitutePlaceholder(chat.PlaceholderAssistant, r.botName)
	return m, nil
}

// Generate produces the answer to trigger given the accumulated history.
// A completion request for a trigger with no content is forced to the dummy
// instruction so an empty completion never reaches the model. The request
// context is a copy of history with one trailing instruction message; the
// history itself is not mutated. The answer is an assistant-role message
// signed with the bot's display name.
func (r *Responder) Generate(ctx context.Context, history []*chat.Message, trigger *chat.Message, instruction prompt.Name) (*chat.Message, error) {
	content, hasContent := trigger.Content()
	if (!hasContent || content == "") && instruction == prompt.Completion {
		log.Printf("session: completion requested for message with no content (%s), forcing dummy instruction",
			trigger.Render())
		instruction = prompt.Dummy
	}

	text, err := r.catalog.Resolve(instruction)
	if err != nil {
		return nil, fmt.Errorf("session: resolve instruction: %w", err)
	}
	request, err := chat.New(chat.Params{Content: chat.Text(text)})
	if err != nil {
		return nil, fmt.Errorf("session: build instruction message: %w", err)
	}
	if instruction == prompt.Completion {
		request.SubstitutePlaceholder(chat.PlaceholderMessage, content)
	}
	author := trigger.Author()
	if author == "" {
		author = fallbackAuthor
	}
	request.SubstitutePlaceholder(chat.PlaceholderUser, author)

	msgs := make([]*chat.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, request)

	answer, err := r.client.Chat(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("session: generate answer: %w", err)
	}

	return chat.New(chat.Params{
		Content: chat.Text(answer),
		Role:    chat.RoleAssistant,
		Author:  r.botName,
	})
}
