package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/benchyard/internal/models"
	"gorm.io/gorm"
)

// sseInterval is how often the event stream polls for new power events.
var sseInterval = 2 * time.Second

// handleSSE streams power events recorded after the client connected.
func handleSSE(db *gorm.DB, board string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		// Only events recorded after the connect are streamed.
		var lastSeenID uint
		if db != nil {
			var last models.PowerEvent
			if err := db.Where("board = ?", board).Order("id DESC").Limit(1).First(&last).Error; err == nil {
				lastSeenID = last.ID
			}
		}

		writeSSE(c.Writer, "connected", map[string]string{"board": board})
		c.Writer.Flush()

		// Without a DB there is nothing to stream.
		if db == nil {
			return
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(sseInterval)
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
				var events []models.PowerEvent
				db.Where("board = ? AND id > ?", board, lastSeenID).Order("id ASC").Find(&events)
				for _, ev := range events {
					writeSSE(c.Writer, "power", ev)
					lastSeenID = ev.ID
				}
				if len(events) > 0 {
					c.Writer.Flush()
				}
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
