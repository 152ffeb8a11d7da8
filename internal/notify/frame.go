package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pscheid92/starpush/internal/domain"
)

// timestampLayout is ISO-8601 with millisecond precision, matching what browsers emit
// from Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type wireEvent struct {
	Type      domain.EventType `json:"type"`
	Data      any              `json:"data"`
	Timestamp string           `json:"timestamp"`
}

// EncodeEvent returns the single-line JSON body of e. encoding/json never emits raw
// newlines, so the body always fits one SSE data line.
func EncodeEvent(e domain.Event) ([]byte, error) {
	body, err := json.Marshal(wireEvent{
		Type:      e.Type,
		Data:      e.Data,
		Timestamp: e.Timestamp.UTC().Format(timestampLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return body, nil
}

// SSEFrame wraps an encoded event in Server-Sent-Events framing: one data line and a
// blank line. No id or retry fields are set.
func SSEFrame(body []byte) []byte {
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame
}

func newEvent(t domain.EventType, data any, now time.Time) domain.Event {
	return domain.Event{Type: t, Data: data, Timestamp: now}
}
