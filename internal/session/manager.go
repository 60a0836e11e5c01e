package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Manager is the session registry: it owns at most one active session per
// channel, creates sessions on slash triggers, and routes collected
// messages to them. A second trigger on a channel with an active session
// supersedes the old session (its window is cancelled without a farewell)
// and starts a fresh one.
type Manager struct {
	responder *Responder
	publisher Publisher
	db        *gorm.DB
	idle      time.Duration
	out       io.Writer

	mu       sync.Mutex
	sessions map[string]*Session // key: channel ID
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Responder   *Responder
	Publisher   Publisher
	DB          *gorm.DB      // optional; enables the transcript archive
	IdleTimeout time.Duration // defaults to DefaultIdleTimeout
	Out         io.Writer     // defaults to os.Stdout
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Responder == nil {
		return nil, fmt.Errorf("session: manager: responder is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("session: manager: publisher is required")
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		responder: opts.Responder,
		publisher: opts.Publisher,
		db:        opts.DB,
		idle:      idle,
		out:       out,
		sessions:  make(map[string]*Session),
	}, nil
}

// Begin starts a session on a channel, superseding any session already
// active there. On success the session is registered and collecting; on
// failure nothing is registered and the error propagates to the dispatcher.
func (m *Manager) Begin(ctx context.Context, platform, channelID string, trig Trigger, reply ReplyFunc) error {
	s := newSession(platform, channelID, m.responder, m.publisher, m.db, m.idle, m.remove)

	// Reserve the channel before the generation round-trip: superseding and
	// registering in one critical section keeps two near-simultaneous
	// triggers from both coming up live on the same channel.
	m.mu.Lock()
	if old, ok := m.sessions[channelID]; ok {
		fmt.Fprintf(m.out, "session: superseding active session [ch=%s]\n", channelID)
		old.Supersede()
	}
	m.sessions[channelID] = s
	m.mu.Unlock()

	if err := s.Start(ctx, trig, reply); err != nil {
		m.remove(channelID, s)
		return fmt.Errorf("session: begin [ch=%s]: %w", channelID, err)
	}
	return nil
}

// HandleInbound routes an externally collected channel message to the
// channel's active session. Messages for channels without a session are
// ignored; self-authored messages never reach here (adapters filter them).
func (m *Manager) HandleInbound(channelID, author, text string) {
	m.mu.Lock()
	s, ok := m.sessions[channelID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Collect(author, text)
}

// ActiveCount returns the number of channels with an active session.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ActiveChannels returns the channel IDs with an active session.
func (m *Manager) ActiveChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for ch := range m.sessions {
		out = append(out, ch)
	}
	return out
}

// Shutdown silently tears down all active sessions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Supersede()
	}
	if len(sessions) > 0 {
		log.Printf("session: shut down %d active sessions", len(sessions))
	}
}

// remove drops a finished session from the registry. The identity check
// keeps a superseding session from being removed by its predecessor's
// teardown.
func (m *Manager) remove(channelID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[channelID]; ok && current == s {
		delete(m.sessions, channelID)
	}
}
