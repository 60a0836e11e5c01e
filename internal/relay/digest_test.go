package relay

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDigestTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.SessionRecord{}, &models.TranscriptEntry{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedSession(t *testing.T, db *gorm.DB, channelID string, startedAt time.Time, turns int) {
	t.Helper()
	rec := models.SessionRecord{
		Platform:  "discord",
		ChannelID: channelID,
		StartedBy: "Ann",
		Status:    models.SessionStatusClosed,
		StartedAt: startedAt,
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i := 0; i < turns; i++ {
		entry := models.TranscriptEntry{
			SessionID: rec.ID,
			Sequence:  i + 1,
			Role:      "user",
			Content:   "text",
			CreatedAt: startedAt,
		}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
}

// ---------------------------------------------------------------------------
// BuildDailyDigest tests
// ---------------------------------------------------------------------------

func TestBuildDailyDigest_NoActivity(t *testing.T) {
	db := openDigestTestDB(t)
	text, err := BuildDailyDigest(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty digest, got %q", text)
	}
}

func TestBuildDailyDigest_SummarizesLastDay(t *testing.T) {
	db := openDigestTestDB(t)
	now := time.Now()
	seedSession(t, db, "ch1", now.Add(-2*time.Hour), 4)
	seedSession(t, db, "ch2", now.Add(-3*time.Hour), 2)
	seedSession(t, db, "ch1", now.Add(-4*time.Hour), 1)

	text, err := BuildDailyDigest(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Daily digest: 3 chats across 2 channels, 7 messages exchanged." {
		t.Errorf("unexpected digest: %q", text)
	}
}

func TestBuildDailyDigest_IgnoresOldSessions(t *testing.T) {
	db := openDigestTestDB(t)
	seedSession(t, db, "ch1", time.Now().Add(-48*time.Hour), 3)

	text, err := BuildDailyDigest(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty digest for stale activity, got %q", text)
	}
}

// ---------------------------------------------------------------------------
// Cron parsing
// ---------------------------------------------------------------------------

func TestNextCronDuration_Valid(t *testing.T) {
	// Every minute: the next fire is always within the coming minute.
	d := nextCronDuration("* * * * *")
	if d <= 0 || d > time.Minute {
		t.Errorf("unexpected duration %v", d)
	}
}

func TestNextCronDuration_Invalid(t *testing.T) {
	if d := nextCronDuration("not a cron expr"); d != 0 {
		t.Errorf("expected 0 for invalid expression, got %v", d)
	}
	if d := nextCronDuration("* * * * * *"); d != 0 {
		t.Errorf("expected 0 for six-field expression, got %v", d)
	}
}

// ---------------------------------------------------------------------------
// fireDigest
// ---------------------------------------------------------------------------

func TestFireDigest_SendsToHomeChannel(t *testing.T) {
	db := openDigestTestDB(t)
	seedSession(t, db, "ch1", time.Now().Add(-time.Hour), 2)

	adapter := NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock adapter: %v", err)
	}
	d, err := NewDaemon(DaemonOpts{
		Config:  testConfig(),
		Adapter: adapter,
		Client:  &stubClient{},
		Catalog: testCatalog(t),
		DB:      db,
		Out:     io.Discard,
	})
	if err != nil {
		t.Fatalf("build daemon: %v", err)
	}

	d.fireDigest(context.Background())

	sent := adapter.AllSent()
	if len(sent) != 1 {
		t.Fatalf("expected one digest post, got %d", len(sent))
	}
	if sent[0].ChannelID != "ch-home" {
		t.Errorf("digest went to %q, want home channel", sent[0].ChannelID)
	}
	if !strings.Contains(sent[0].Text, "Daily digest:") {
		t.Errorf("unexpected digest text %q", sent[0].Text)
	}
}

func TestFireDigest_NoActivityNoPost(t *testing.T) {
	db := openDigestTestDB(t)
	adapter := NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock adapter: %v", err)
	}
	d, err := NewDaemon(DaemonOpts{
		Config:  testConfig(),
		Adapter: adapter,
		Client:  &stubClient{},
		Catalog: testCatalog(t),
		DB:      db,
		Out:     io.Discard,
	})
	if err != nil {
		t.Fatalf("build daemon: %v", err)
	}

	d.fireDigest(context.Background())
	if adapter.SentCount() != 0 {
		t.Error("digest posted despite no activity")
	}
}
