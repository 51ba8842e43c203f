package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/harborlabs/cruisesync/internal/sync/orchestrator"
	"go.uber.org/zap"
)

// maxWebhookBody bounds what we read from the supplier; notifications are
// tiny and anything bigger is noise.
const maxWebhookBody = 64 << 10

// traveltekWebhook is the supplier's pricing-updated notification. The
// line id arrives as a number or a string depending on the sender.
type traveltekWebhook struct {
	Event     string          `json:"event"`
	LineID    json.RawMessage `json:"lineid"`
	Currency  string          `json:"currency"`
	Timestamp int64           `json:"timestamp"`
}

func (w traveltekWebhook) lineCode() string {
	raw := strings.TrimSpace(string(w.LineID))
	raw = strings.Trim(raw, `"`)
	if raw == "null" {
		return ""
	}
	return strings.TrimSpace(raw)
}

// handleTraveltekWebhook acks fast and hands the event to the queue. The
// body is kept for attribution but never re-read after this handler.
func (s *Server) handleTraveltekWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var payload traveltekWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	lineCode := payload.lineCode()
	if lineCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing lineid"})
		return
	}

	if res := s.limiter.Allow(c.Request.Context(), lineCode); !res.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}

	event := syncdomain.IngestEvent{
		EventID:    uuid.NewString(),
		EventType:  payload.Event,
		LineCode:   lineCode,
		ReceivedAt: time.Now().UTC(),
		RawPayload: body,
	}

	status := s.orch.Enqueue(event)
	s.log.Info("webhook received",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("line_code", lineCode),
		zap.String("ack", string(status)))

	httpStatus := http.StatusAccepted
	if status == orchestrator.EnqueueDeduplicated {
		httpStatus = http.StatusOK
	}
	c.JSON(httpStatus, gin.H{
		"status":   string(status),
		"event_id": event.EventID,
	})
}
