package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// sessionCountEvent holds data for a session-count SSE event.
type sessionCountEvent struct {
	Active   int      `json:"active"`
	Channels []string `json:"channels,omitempty"`
}

// handleSSE streams live session counts, emitting an event whenever the
// count changes plus a periodic heartbeat.
func handleSSE(sessions SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// No session source means nothing to stream — tests use nil.
		if sessions == nil {
			return
		}

		lastCount := -1

		ctx := c.Request.Context()
		ticker := time.NewTicker(2 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				count := sessions.ActiveCount()
				if count == lastCount {
					continue
				}
				lastCount = count
				writeSSE(c.Writer, "sessions", sessionCountEvent{
					Active:   count,
					Channels: sessions.ActiveChannels(),
				})
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
