package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/parley/internal/config"
	"github.com/zulandar/parley/internal/prompt"
	"github.com/zulandar/parley/internal/session"
	"gorm.io/gorm"
)

// Daemon is the main relay process. It connects to a chat platform via an
// Adapter, routes slash invocations to the session registry, pumps channel
// messages into active sessions, and posts the daily digest.
type Daemon struct {
	cfg     *config.Config
	adapter Adapter
	client  session.ChatClient
	catalog *prompt.Catalog
	db      *gorm.DB // optional transcript archive
	out     io.Writer

	mgr *session.Manager // built in Run, exposed for the dashboard
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Adapter Adapter
	Client  session.ChatClient
	Catalog *prompt.Catalog
	DB      *gorm.DB  // optional; enables the transcript archive and digest
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("relay: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: adapter is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("relay: chat client is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("relay: prompt catalog is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.DB == nil {
		fmt.Fprintf(out, "relay: no archive configured; transcripts and digest disabled\n")
	}
	return &Daemon{
		cfg:     opts.Config,
		adapter: opts.Adapter,
		client:  opts.Client,
		catalog: opts.Catalog,
		db:      opts.DB,
		out:     out,
	}, nil
}

// Sessions returns the session registry, or nil before Run has built it.
func (d *Daemon) Sessions() *session.Manager { return d.mgr }

// adapterPublisher adapts an Adapter to the session.Publisher interface.
type adapterPublisher struct {
	adapter Adapter
}

func (p adapterPublisher) Publish(ctx context.Context, channelID, text string) error {
	return p.adapter.Send(ctx, OutboundMessage{ChannelID: channelID, Text: text})
}

// Run starts the relay daemon. It connects the adapter, builds the session
// registry and invocation dispatcher, and blocks until the context is
// cancelled. On shutdown it tears down active sessions and closes the
// adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Parley connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("relay: connect: %w", err)
	}

	// Resolve the name answers are signed with: explicit config override,
	// then the platform identity, then a generic fallback.
	botName := d.cfg.Chat.BotName
	if botName == "" {
		if bi, ok := d.adapter.(BotIdentifier); ok {
			botName = bi.BotIdentity().DisplayName
		}
	}
	if botName == "" {
		botName = "the assistant"
	}

	responder, err := session.NewResponder(session.ResponderOpts{
		Client:  d.client,
		Catalog: d.catalog,
		BotName: botName,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: build responder: %w", err)
	}

	mgr, err := session.NewManager(session.ManagerOpts{
		Responder:   responder,
		Publisher:   adapterPublisher{adapter: d.adapter},
		DB:          d.db,
		IdleTimeout: time.Duration(d.cfg.Chat.WindowSec) * time.Second,
		Out:         d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: build session manager: %w", err)
	}
	d.mgr = mgr

	dispatcher, err := NewDispatcher(DispatcherOpts{
		Adapter:  d.adapter,
		Sessions: mgr,
		Out:      d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: build dispatcher: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: listen: %w", err)
	}
	invocations, err := d.adapter.Invocations(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: invocations: %w", err)
	}

	// Start the digest scheduler if enabled and backed by the archive.
	if d.cfg.Digest.Enabled && d.db != nil {
		go d.runDigestScheduler(ctx)
	}

	fmt.Fprintf(d.out, "Parley online as %s\n", botName)

	// Main event loop: pump invocations and channel messages until the
	// context is cancelled.
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Parley shutting down...\n")
			mgr.Shutdown()
			if err := d.adapter.Close(); err != nil {
				log.Printf("relay: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Parley stopped\n")
			return nil

		case inv, ok := <-invocations:
			if !ok {
				fmt.Fprintf(d.out, "Parley invocation channel closed\n")
				return nil
			}
			// Handled on its own goroutine: a session's first generation
			// round-trip must not stall message collection for other channels.
			go dispatcher.Handle(ctx, inv)

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Parley inbound channel closed\n")
				return nil
			}
			mgr.HandleInbound(msg.ChannelID, msg.UserName, msg.Text)
		}
	}
}
