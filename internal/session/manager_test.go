package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/parley/internal/chat"
	"github.com/zulandar/parley/internal/models"
)

// gatedClient blocks every generation call until the gate is released,
// holding Begin in flight so triggers can be made to overlap.
type gatedClient struct {
	mockClient
	gate    chan struct{}
	arrived chan struct{}
}

func (c *gatedClient) Chat(ctx context.Context, msgs []*chat.Message) (string, error) {
	c.arrived <- struct{}{}
	<-c.gate
	return c.mockClient.Chat(ctx, msgs)
}

// ---------------------------------------------------------------------------
// NewManager tests
// ---------------------------------------------------------------------------

func TestNewManager_Validation(t *testing.T) {
	responder := testResponder(t, &mockClient{})
	if _, err := NewManager(ManagerOpts{Publisher: &mockPublisher{}}); err == nil {
		t.Error("expected error without responder")
	}
	if _, err := NewManager(ManagerOpts{Responder: responder}); err == nil {
		t.Error("expected error without publisher")
	}
}

func TestNewManager_DefaultIdle(t *testing.T) {
	mgr, err := NewManager(ManagerOpts{
		Responder: testResponder(t, &mockClient{}),
		Publisher: &mockPublisher{},
		Out:       discard{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.idle != DefaultIdleTimeout {
		t.Errorf("expected default idle %v, got %v", DefaultIdleTimeout, mgr.idle)
	}
}

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestBegin_SecondTriggerSupersedes(t *testing.T) {
	rig := newTestRig(t, time.Minute, nil)
	ctx := context.Background()

	if err := rig.mgr.Begin(ctx, "discord", "ch1",
		Trigger{Author: "Ann", Opening: chat.Text("hello")}, rig.reply); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	first := rig.activeSession(t, "ch1")

	if err := rig.mgr.Begin(ctx, "discord", "ch1",
		Trigger{Author: "Ben", Opening: chat.Text("my turn")}, rig.reply); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	second := rig.activeSession(t, "ch1")
	if first == second {
		t.Fatal("expected a fresh session after supersede")
	}

	waitFor(t, 2*time.Second, func() bool { return first.State() == StateIdle })

	// Supersede is silent: no farewell reaches the channel.
	if rig.publisher.count() != 0 {
		t.Errorf("supersede must not publish, got %v", rig.publisher.all())
	}

	// The superseding session must survive its predecessor's teardown.
	if rig.mgr.ActiveCount() != 1 {
		t.Errorf("expected the new session registered, active=%d", rig.mgr.ActiveCount())
	}
	if rig.activeSession(t, "ch1") != second {
		t.Error("registry does not hold the superseding session")
	}

	// And it keeps answering.
	rig.mgr.HandleInbound("ch1", "Cal", "still here?")
	waitFor(t, 2*time.Second, func() bool { return second.HistoryLen() == 5 })
}

func TestBegin_SupersededSessionMarkedInArchive(t *testing.T) {
	db := openSessionTestDB(t)
	rig := newTestRig(t, time.Minute, db)
	ctx := context.Background()

	if err := rig.mgr.Begin(ctx, "discord", "ch1",
		Trigger{Author: "Ann", Opening: chat.Text("hello")}, rig.reply); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if err := rig.mgr.Begin(ctx, "discord", "ch1",
		Trigger{Author: "Ben", Opening: chat.Text("mine now")}, rig.reply); err != nil {
		t.Fatalf("second begin: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		var n int64
		db.Model(&models.SessionRecord{}).
			Where("status = ?", models.SessionStatusSuperseded).Count(&n)
		return n == 1
	})
}

func TestBegin_SimultaneousTriggersLeaveOneSession(t *testing.T) {
	db := openSessionTestDB(t)
	client := &gatedClient{gate: make(chan struct{}), arrived: make(chan struct{}, 2)}
	publisher := &mockPublisher{}
	mgr, err := NewManager(ManagerOpts{
		Responder:   testResponder(t, client),
		Publisher:   publisher,
		DB:          db,
		IdleTimeout: time.Minute,
		Out:         discard{},
	})
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}

	noReply := func(context.Context, string) error { return nil }
	triggers := []Trigger{
		{Author: "Ann", Opening: chat.Text("hello")},
		{Author: "Ben", Opening: chat.Text("me too")},
	}
	var wg sync.WaitGroup
	errs := make([]error, len(triggers))
	for i, trig := range triggers {
		wg.Add(1)
		go func(i int, trig Trigger) {
			defer wg.Done()
			errs[i] = mgr.Begin(context.Background(), "discord", "ch1", trig, noReply)
		}(i, trig)
	}

	// Both initial generations must be in flight together.
	<-client.arrived
	<-client.arrived

	// A message arriving while neither session has opened its window yet is
	// dropped, not crashed on.
	mgr.HandleInbound("ch1", "Cal", "anyone home?")

	close(client.gate)
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
	}

	if n := mgr.ActiveCount(); n != 1 {
		t.Fatalf("expected exactly one live session, active=%d", n)
	}

	// The losing trigger's session is torn down silently, not orphaned.
	waitFor(t, 2*time.Second, func() bool {
		var n int64
		db.Model(&models.SessionRecord{}).
			Where("status = ?", models.SessionStatusSuperseded).Count(&n)
		return n == 1
	})
	if publisher.count() != 0 {
		t.Errorf("superseded session must not publish, got %v", publisher.all())
	}

	// The survivor holds exactly its own initial exchange; the early message
	// never reached it.
	mgr.mu.Lock()
	survivor := mgr.sessions["ch1"]
	mgr.mu.Unlock()
	waitFor(t, 2*time.Second, func() bool { return survivor.HistoryLen() == 3 })
}

func TestHandleInbound_UnknownChannelIgnored(t *testing.T) {
	rig := newTestRig(t, time.Minute, nil)
	rig.mgr.HandleInbound("nowhere", "Ann", "hello?")
	if rig.client.callCount() != 0 {
		t.Error("message for unknown channel reached the model")
	}
}

func TestActiveChannels(t *testing.T) {
	rig := newTestRig(t, time.Minute, nil)
	ctx := context.Background()

	for _, ch := range []string{"ch1", "ch2"} {
		if err := rig.mgr.Begin(ctx, "discord", ch,
			Trigger{Author: "Ann", Opening: chat.Text("hello")}, rig.reply); err != nil {
			t.Fatalf("begin %s: %v", ch, err)
		}
	}
	channels := rig.mgr.ActiveChannels()
	if len(channels) != 2 {
		t.Errorf("expected 2 active channels, got %v", channels)
	}
}

func TestShutdown_TearsDownAllSessions(t *testing.T) {
	rig := newTestRig(t, time.Minute, nil)
	ctx := context.Background()

	for _, ch := range []string{"ch1", "ch2", "ch3"} {
		if err := rig.mgr.Begin(ctx, "discord", ch,
			Trigger{Author: "Ann", Opening: chat.Text("hello")}, rig.reply); err != nil {
			t.Fatalf("begin %s: %v", ch, err)
		}
	}

	rig.mgr.Shutdown()
	if rig.mgr.ActiveCount() != 0 {
		t.Errorf("expected empty registry, active=%d", rig.mgr.ActiveCount())
	}
	// Silent teardown: no farewells.
	time.Sleep(50 * time.Millisecond)
	if rig.publisher.count() != 0 {
		t.Errorf("shutdown must not publish, got %v", rig.publisher.all())
	}
}
