package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/zulandar/parley/internal/chat"
	"github.com/zulandar/parley/internal/session"
)

// Slash command and option names, shared with the deploy tooling.
const (
	CommandStartChat = "start-chat"
	CommandUser      = "user"

	OptionFirstMessage = "first-message"
)

// invocationFailureNotice is the single user-visible notice sent when a
// command handler fails for any reason.
const invocationFailureNotice = "There was an error while executing this command!"

// Dispatcher routes slash-command invocations to their handlers. It is the
// last line of defense: any handler failure, panics included, becomes one
// ephemeral failure notice instead of taking down the process or other
// sessions.
type Dispatcher struct {
	adapter  Adapter
	sessions *session.Manager
	out      io.Writer
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Adapter  Adapter
	Sessions *session.Manager
	Out      io.Writer // defaults to os.Stdout
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: dispatcher: adapter is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("relay: dispatcher: session manager is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Dispatcher{
		adapter:  opts.Adapter,
		sessions: opts.Sessions,
		out:      out,
	}, nil
}

// Handle executes a single invocation.
func (d *Dispatcher) Handle(ctx context.Context, inv Invocation) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("relay: dispatch %s: panic: %v", inv.Command, r)
			d.sendFailure(ctx, inv)
		}
	}()

	fmt.Fprintf(d.out, "relay: dispatch: %s [ch=%s user=%s]\n", inv.Command, inv.ChannelID, inv.UserName)

	var err error
	switch inv.Command {
	case CommandStartChat:
		err = d.handleStartChat(ctx, inv)
	case CommandUser:
		err = d.handleUser(ctx, inv)
	default:
		log.Printf("relay: no command matching %q was found", inv.Command)
		return
	}

	if err != nil {
		log.Printf("relay: dispatch %s: %v", inv.Command, err)
		d.sendFailure(ctx, inv)
	}
}

// handleStartChat opens a session on the invoking channel. The interaction
// is deferred first, claiming time for the initial generation round-trip;
// the session fills the deferred reply in with its first answer.
func (d *Dispatcher) handleStartChat(ctx context.Context, inv Invocation) error {
	if err := d.adapter.Defer(ctx, inv); err != nil {
		return fmt.Errorf("defer reply: %w", err)
	}

	opening := chat.NullText()
	if text, ok := inv.Options[OptionFirstMessage]; ok && text != "" {
		opening = chat.Text(text)
	}

	reply := func(ctx context.Context, text string) error {
		return d.adapter.EditReply(ctx, inv, text)
	}

	return d.sessions.Begin(ctx, inv.Platform, inv.ChannelID, session.Trigger{
		Author:  inv.UserName,
		Opening: opening,
	}, reply)
}

// handleUser answers with information about the invoking user.
func (d *Dispatcher) handleUser(ctx context.Context, inv Invocation) error {
	text := fmt.Sprintf("This command was run by `%s`", inv.UserName)
	if !inv.JoinedAt.IsZero() {
		text += fmt.Sprintf(", who joined on `%s`", inv.JoinedAt.Format("2006-01-02"))
	}
	text += "."
	if err := d.adapter.ReplyEphemeral(ctx, inv, text); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// sendFailure delivers the single user-visible failure notice, best-effort.
func (d *Dispatcher) sendFailure(ctx context.Context, inv Invocation) {
	if err := d.adapter.ReplyEphemeral(ctx, inv, invocationFailureNotice); err != nil {
		log.Printf("relay: send failure notice: %v", err)
	}
}
