package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/parley/internal/chat"
	"github.com/zulandar/parley/internal/models"
	"github.com/zulandar/parley/internal/prompt"
	"gorm.io/gorm"
)

// State is the lifecycle phase of a Session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateActive
	StateClosing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Publisher delivers text to a channel on the chat platform.
type Publisher interface {
	Publish(ctx context.Context, channelID, text string) error
}

// ReplyFunc fills in the deferred reply that acknowledged the triggering
// slash invocation.
type ReplyFunc func(ctx context.Context, text string) error

// failureNotice is the user-visible message published when the generation
// endpoint is unavailable.
const failureNotice = "Sorry, I couldn't reach the language model. Please try again in a moment."

// turnQueueSize bounds the number of collected messages waiting on an
// in-flight generation before further ones are dropped.
const turnQueueSize = 64

// Trigger describes the slash invocation that opens a session.
type Trigger struct {
	Author  string       // display name of the invoking user
	Opening chat.Content // optional first message; null means none supplied
}

// turn is one unit of work on a session's serialized queue: either a
// collected message or the window expiry sentinel.
type turn struct {
	expire    bool
	collected int // valid when expire is true
	author    string
	text      string
}

// Session ties one channel to one history and one collection window.
// Collected messages and the expiry are processed one at a time on a single
// worker goroutine, so history append order matches arrival order and no
// turn interleaves with another's generation round-trip.
type Session struct {
	platform  string
	channelID string
	responder *Responder
	publisher Publisher
	db        *gorm.DB // optional transcript archive
	idle      time.Duration
	onClose   func(channelID string, s *Session)

	history *chat.History
	window  *Window

	turns    chan turn
	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	state    State
	recordID uint
	seq      int
}

// newSession builds an idle session bound to a channel. Callers go through
// Manager.Begin, which enforces the one-session-per-channel invariant.
func newSession(platform, channelID string, responder *Responder, publisher Publisher, db *gorm.DB, idle time.Duration, onClose func(string, *Session)) *Session {
	return &Session{
		platform:  platform,
		channelID: channelID,
		responder: responder,
		publisher: publisher,
		db:        db,
		idle:      idle,
		onClose:   onClose,
		history:   chat.NewHistory(),
		turns:     make(chan turn, turnQueueSize),
		quit:      make(chan struct{}),
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HistoryLen returns the number of turns currently in the history.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start runs the initial exchange: seed the history with the persona system
// message, answer the opening text (or greet when there is none), publish
// the answer through reply, and open the collection window. On generation
// failure the session is left idle, the history is discarded, and the error
// propagates to the caller; nothing has been published.
func (s *Session) Start(ctx context.Context, trig Trigger, reply ReplyFunc) error {
	s.setState(StateInitializing)

	persona, err := s.responder.Persona()
	if err != nil {
		s.setState(StateIdle)
		return err
	}
	s.history.Append(persona)

	opening, err := chat.New(chat.Params{
		Content: trig.Opening,
		Role:    chat.RoleUser,
		Author:  trig.Author,
	})
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("session: build opening message: %w", err)
	}

	instruction := prompt.Completion
	if text, ok := opening.Content(); !ok || text == "" {
		instruction = prompt.Greeting
	}

	answer, err := s.responder.Generate(ctx, s.history.Messages(), opening, instruction)
	if err != nil {
		s.history.Clear()
		s.setState(StateIdle)
		return err
	}

	if err := reply(ctx, mustContent(answer)); err != nil {
		s.history.Clear()
		s.setState(StateIdle)
		return fmt.Errorf("session: publish first answer: %w", err)
	}

	if text, ok := opening.Content(); ok && text != "" {
		s.history.Append(opening)
	}
	s.history.Append(answer)

	s.openRecord(trig.Author)
	s.archiveTurn(opening)
	s.archiveTurn(answer)

	win := OpenWindow(s.idle, func(collected int) {
		select {
		case s.turns <- turn{expire: true, collected: collected}:
		default:
			log.Printf("session: turn queue full on expiry [ch=%s]", s.channelID)
		}
	})
	s.mu.Lock()
	s.window = win
	s.mu.Unlock()
	go s.run(ctx)
	s.setState(StateActive)

	log.Printf("session: started [ch=%s user=%s instruction=%s]", s.channelID, trig.Author, instruction)
	return nil
}

// Collect hands an externally gathered message to the session. It restarts
// the window's idle countdown immediately and queues the message for the
// worker, preserving arrival order. Messages arriving before the initial
// exchange has opened the window, or after the window has expired or the
// session was superseded, are dropped with a diagnostic.
func (s *Session) Collect(author, text string) {
	s.mu.Lock()
	win := s.window
	s.mu.Unlock()
	if win == nil {
		log.Printf("session: dropping message before session is active [ch=%s user=%s]", s.channelID, author)
		return
	}
	if !win.Collect() {
		log.Printf("session: dropping message after window close [ch=%s user=%s]", s.channelID, author)
		return
	}
	log.Printf("session: collected message [ch=%s user=%s]", s.channelID, author)
	select {
	case s.turns <- turn{author: author, text: text}:
	default:
		log.Printf("session: turn queue full, dropping message [ch=%s user=%s]", s.channelID, author)
	}
}

// Supersede silently tears the session down: the window is cancelled, no
// farewell is generated, and the archive record is marked superseded.
func (s *Session) Supersede() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// run is the session's worker loop. It owns the history once the session is
// active: every mutation after Start happens here, one turn at a time.
func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.window.Close()
			s.history.Clear()
			s.setState(StateIdle)
			s.finishRecord(models.SessionStatusClosed)
			s.onClose(s.channelID, s)
			return
		case <-s.quit:
			s.window.Close()
			s.history.Clear()
			s.setState(StateIdle)
			s.finishRecord(models.SessionStatusSuperseded)
			log.Printf("session: superseded [ch=%s]", s.channelID)
			s.onClose(s.channelID, s)
			return
		case t := <-s.turns:
			if t.expire {
				s.closeOut(ctx, t.collected)
				return
			}
			s.handleTurn(ctx, t)
		}
	}
}

// handleTurn answers one collected message. A generation failure publishes
// the failure notice and leaves the history untouched, so the session stays
// usable for the next message.
func (s *Session) handleTurn(ctx context.Context, t turn) {
	msg, err := chat.New(chat.Params{
		Content: chat.Text(t.text),
		Role:    chat.RoleUser,
		Author:  t.author,
	})
	if err != nil {
		log.Printf("session: build collected message: %v", err)
		return
	}

	answer, err := s.responder.Generate(ctx, s.history.Messages(), msg, prompt.Completion)
	if err != nil {
		log.Printf("session: answer collected message [ch=%s]: %v", s.channelID, err)
		s.publish(ctx, failureNotice)
		s.window.Reset()
		return
	}

	s.publish(ctx, mustContent(answer))

	// The window was already reset when the message was collected; reset it
	// again now so generation latency never counts against the idle deadline.
	s.window.Reset()

	if text, ok := msg.Content(); ok && text != "" {
		s.mu.Lock()
		s.history.Append(msg)
		s.history.Append(answer)
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.history.Append(answer)
		s.mu.Unlock()
	}

	s.archiveTurn(msg)
	s.archiveTurn(answer)

	log.Printf("session: answered message [ch=%s user=%s] %s", s.channelID, t.author, answer.Render())
}

// closeOut runs the CLOSING phase after window expiry: generate a farewell
// from a synthetic null-content trigger, publish it, and clear the history.
func (s *Session) closeOut(ctx context.Context, collected int) {
	s.setState(StateClosing)
	log.Printf("session: window expired [ch=%s] collected=%d", s.channelID, collected)

	farewellTrigger, err := chat.New(chat.Params{Content: chat.NullText(), Role: chat.RoleUser})
	if err != nil {
		log.Printf("session: build farewell trigger: %v", err)
	} else {
		answer, err := s.responder.Generate(ctx, s.history.Messages(), farewellTrigger, prompt.FarewellTimeout)
		if err != nil {
			log.Printf("session: farewell generation [ch=%s]: %v", s.channelID, err)
			s.publish(ctx, failureNotice)
		} else {
			s.publish(ctx, mustContent(answer))
			s.archiveTurn(answer)
		}
	}

	s.mu.Lock()
	finalLen := s.history.Len()
	s.history.Clear()
	s.state = StateIdle
	s.mu.Unlock()

	s.finishRecord(models.SessionStatusClosed)
	log.Printf("session: finished [ch=%s] collected=%d final_history=%d", s.channelID, collected, finalLen)

	s.onClose(s.channelID, s)
}

// publish sends text to the session's channel, logging delivery failures.
func (s *Session) publish(ctx context.Context, text string) {
	if err := s.publisher.Publish(ctx, s.channelID, text); err != nil {
		log.Printf("session: publish [ch=%s]: %v", s.channelID, err)
	}
}

// mustContent unwraps a message body that is non-null by construction
// (generated answers always carry text).
func mustContent(m *chat.Message) string {
	text, _ := m.Content()
	return text
}

// --- transcript archive (optional, operator-facing only) ---

// openRecord creates the archive row for a new session. No-op without a DB.
func (s *Session) openRecord(startedBy string) {
	if s.db == nil {
		return
	}
	rec := models.SessionRecord{
		Platform:  s.platform,
		ChannelID: s.channelID,
		StartedBy: startedBy,
		Status:    models.SessionStatusActive,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Printf("session: archive open [ch=%s]: %v", s.channelID, err)
		return
	}
	s.mu.Lock()
	s.recordID = rec.ID
	s.mu.Unlock()
}

// archiveTurn appends one transcript row. Null-content messages are
// bookkeeping sentinels and are not archived. No-op without a DB.
func (s *Session) archiveTurn(m *chat.Message) {
	if s.db == nil {
		return
	}
	text, ok := m.Content()
	if !ok || text == "" {
		return
	}
	s.mu.Lock()
	recordID := s.recordID
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if recordID == 0 {
		return
	}
	entry := models.TranscriptEntry{
		SessionID: recordID,
		Sequence:  seq,
		Role:      string(m.Role()),
		Author:    m.Author(),
		Content:   text,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("session: archive turn [ch=%s]: %v", s.channelID, err)
	}
}

// finishRecord closes the archive row with a final status and the collected
// count. No-op without a DB or when no row was opened.
func (s *Session) finishRecord(status string) {
	if s.db == nil {
		return
	}
	s.mu.Lock()
	recordID := s.recordID
	s.mu.Unlock()
	if recordID == 0 {
		return
	}
	now := time.Now()
	err := s.db.Model(&models.SessionRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"status":          status,
			"collected_count": s.window.Collected(),
			"closed_at":       &now,
		}).Error
	if err != nil {
		log.Printf("session: archive close [ch=%s]: %v", s.channelID, err)
	}
}
