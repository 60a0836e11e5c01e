// Package chat defines the message model used as generation context: roles,
// prompt placeholders, the Message value type, and the per-session History.
package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Role identifies who authored a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Placeholder is a textual marker recognized inside prompt templates and
// substituted with a runtime value before the message is sent to the model.
type Placeholder string

const (
	PlaceholderUser      Placeholder = "<user>"
	PlaceholderAssistant Placeholder = "<assistant>"
	PlaceholderMessage   Placeholder = "<message>"
)

// known reports whether p is one of the recognized placeholders.
func (p Placeholder) known() bool {
	switch p {
	case PlaceholderUser, PlaceholderAssistant, PlaceholderMessage:
		return true
	}
	return false
}

// ErrInvalidArgument marks a programming-contract violation, such as
// constructing a Message without explicitly providing its content.
var ErrInvalidArgument = errors.New("chat: invalid argument")

// Content carries a message body that may legitimately be null (the "no
// message" sentinel used when synthesizing a farewell trigger). The zero
// value means the caller never provided content at all, which New rejects.
type Content struct {
	provided bool
	null     bool
	text     string
}

// Text returns a Content holding s.
func Text(s string) Content {
	return Content{provided: true, text: s}
}

// NullText returns an explicitly provided null Content.
func NullText() Content {
	return Content{provided: true, null: true}
}

// Params holds the named construction arguments for a Message. Content is
// required; Role defaults to RoleSystem; Author is optional and in practice
// only set for user-authored turns.
type Params struct {
	Content Content
	Role    Role
	Author  string
}

// Message is one turn in a conversation. Role and Author never change after
// construction; content changes only through the canonical user framing
// applied by New and through explicit placeholder substitution.
type Message struct {
	role    Role
	author  string
	content *string
}

// New constructs a Message. It fails with ErrInvalidArgument when content
// was not explicitly provided (a zero-value Content). A null content is
// accepted. When role is user and both author and a non-empty content are
// present, the content is rewritten to the canonical "<author> wrote: ..."
// framing and the user placeholder is substituted into it.
func New(p Params) (*Message, error) {
	if !p.Content.provided {
		return nil, fmt.Errorf("%w: message content must be explicitly provided", ErrInvalidArgument)
	}

	role := p.Role
	if role == "" {
		role = RoleSystem
	}

	m := &Message{role: role, author: p.Author}
	if !p.Content.null {
		text := p.Content.text
		m.content = &text
	}

	if p.Author != "" && m.content != nil && *m.content != "" && role == RoleUser {
		framed := fmt.Sprintf("%s wrote: %s", p.Author, *m.content)
		m.content = &framed
		m.SubstitutePlaceholder(PlaceholderUser, p.Author)
	}

	return m, nil
}

// Role returns the role of the message's author.
func (m *Message) Role() Role { return m.role }

// Author returns the display name of the message's author, or "" if unset.
func (m *Message) Author() string { return m.author }

// Content returns the message body and whether it is non-null.
func (m *Message) Content() (string, bool) {
	if m.content == nil {
		return "", false
	}
	return *m.content, true
}

// SubstitutePlaceholder replaces every occurrence of placeholder in the
// content with value. Substituting into null content or with an unrecognized
// placeholder is a recoverable no-op that only logs a diagnostic. An empty
// (but non-null) content is a valid substitution target.
func (m *Message) SubstitutePlaceholder(placeholder Placeholder, value string) {
	if m.content == nil {
		log.Printf("chat: cannot substitute placeholders in null content")
		return
	}
	if !placeholder.known() {
		log.Printf("chat: cannot substitute unrecognized placeholder %q", placeholder)
		return
	}
	*m.content = strings.ReplaceAll(*m.content, string(placeholder), value)
}

// Render returns a one-line human-readable form of the message, used for
// diagnostics only — never as a protocol payload.
func (m *Message) Render() string {
	content := "<null>"
	if m.content != nil {
		content = *m.content
	}
	if m.author == "" {
		return fmt.Sprintf("[%s]: %s", m.role, content)
	}
	return fmt.Sprintf("[%s]: %s (by %s)", m.role, content, m.author)
}
