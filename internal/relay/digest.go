package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/parley/internal/models"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// runDigestScheduler posts the daily activity digest to the home channel on
// the configured cron schedule. It returns immediately when the expression
// does not parse.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	wait := nextCronDuration(d.cfg.Digest.Cron)
	if wait <= 0 {
		log.Printf("relay: digest cron %q did not parse, digest disabled", d.cfg.Digest.Cron)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if wait = nextCronDuration(d.cfg.Digest.Cron); wait > 0 {
				timer.Reset(wait)
			} else {
				return
			}
		}
	}
}

// fireDigest builds and sends a single daily digest. A day with no sessions
// suppresses the post.
func (d *Daemon) fireDigest(ctx context.Context) {
	text, err := BuildDailyDigest(d.db)
	if err != nil {
		log.Printf("relay: daily digest: %v", err)
		return
	}
	if text == "" {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.cfg.HomeChannel(),
		Text:      text,
	}); err != nil {
		log.Printf("relay: send daily digest: %v", err)
	}
}

// BuildDailyDigest summarizes the last 24 hours of archived activity.
// Returns "" when there was none.
func BuildDailyDigest(gdb *gorm.DB) (string, error) {
	cutoff := time.Now().Add(-24 * time.Hour)

	var sessions int64
	if err := gdb.Model(&models.SessionRecord{}).
		Where("started_at >= ?", cutoff).
		Count(&sessions).Error; err != nil {
		return "", fmt.Errorf("relay: count sessions: %w", err)
	}
	if sessions == 0 {
		return "", nil
	}

	var turns int64
	if err := gdb.Model(&models.TranscriptEntry{}).
		Where("created_at >= ?", cutoff).
		Count(&turns).Error; err != nil {
		return "", fmt.Errorf("relay: count turns: %w", err)
	}

	var channels int64
	if err := gdb.Model(&models.SessionRecord{}).
		Where("started_at >= ?", cutoff).
		Distinct("channel_id").
		Count(&channels).Error; err != nil {
		return "", fmt.Errorf("relay: count channels: %w", err)
	}

	return fmt.Sprintf("Daily digest: %d chats across %d channels, %d messages exchanged.",
		sessions, channels, turns), nil
}
