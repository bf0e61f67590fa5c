package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhodhq/vhod/internal/events"
	"github.com/vhodhq/vhod/internal/policy"
)

var streamableEventTypes = map[string]bool{
	events.TypeAllocationRecomputed: true,
	events.TypeInvoiceIssued:        true,
	events.TypePaymentApplied:       true,
}

// StreamEvents pushes domain events of one type as server-sent events,
// starting with the replay buffer.
func (s *Server) StreamEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if !s.authorize(c, 0, policy.ActionInvoiceView) {
		return
	}

	eventType := strings.TrimSpace(c.Query("type"))
	if !streamableEventTypes[eventType] {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, backlog := s.hub.Subscribe(eventType)
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	for _, event := range backlog {
		if err := writeEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
