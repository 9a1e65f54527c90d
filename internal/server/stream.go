package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	streamEventHeartbeat  = "heartbeat"
	streamHeartbeatPeriod = 25 * time.Second
)

type streamEventPayload struct {
	Kind      string   `json:"kind,omitempty"`
	RecordIDs []string `json:"recordIds,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "events_unavailable"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	messages, cancel := h.events.Subscribe(c.Request.Context())
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeatPeriod)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-heartbeat.C:
			c.SSEvent(streamEventHeartbeat, streamEventPayload{Timestamp: time.Now().Unix()})
			c.Writer.Flush()
		case message, open := <-messages:
			if !open {
				return
			}
			c.SSEvent(message.Topic, streamEventPayload{
				Kind:      message.Kind,
				RecordIDs: message.RecordIDs,
				Timestamp: message.Timestamp.Unix(),
			})
			c.Writer.Flush()
		}
	}
}
