package sse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultRetryMs = 5000

// Stream writes server-sent events from ch until the client disconnects or
// ch closes. A comment ping is sent every heartbeat to keep proxies from
// closing the idle connection. Used as the non-websocket alert stream.
func Stream(c *gin.Context, ch <-chan interface{}, heartbeat time.Duration) {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", defaultRetryMs)
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}
