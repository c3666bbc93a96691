package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/peakwatch/internal/store"
	"github.com/zulandar/peakwatch/internal/tracker"
)

// streamInterval is the cadence of live pushes on the SSE stream.
const streamInterval = 3 * time.Second

// handleStream pushes the session record over SSE at a fixed cadence while
// the session is non-terminal, ending the stream after one final push once
// it reaches a terminal status. Persisted-only sessions get a single push.
func handleStream(sup *tracker.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		id := c.Param("id")
		ctx := c.Request.Context()

		for {
			state, err := sup.Get(id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeSSEData(c.Writer, gin.H{"error": "not found"})
				} else {
					writeSSEData(c.Writer, gin.H{"error": err.Error()})
				}
				c.Writer.Flush()
				return
			}

			payload := sessionPayloadFrom(state)
			writeSSEData(c.Writer, payload)
			c.Writer.Flush()

			// Terminal record, or no live tracker to produce updates.
			if payload.terminal() || !state.Live {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(streamInterval):
			}
		}
	}
}

// writeSSEData writes a single SSE data frame to the writer.
func writeSSEData(w io.Writer, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", string(jsonData))
}
