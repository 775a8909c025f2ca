package hub

import (
	"bytes"
	"encoding/json"
	"time"
)

// Realtime message types.
const (
	TypeNewOrderAvailable     = "new_order_available"
	TypeOrderStatusUpdate     = "order_status_update"
	TypeCaptainLocationUpdate = "captain_location_update"
	TypeNotification          = "notification"
	TypeConnected             = "connected"
	TypePong                  = "pong"
)

// Envelope is a realtime message. On the wire the payload fields sit next to
// type and timestamp: {"type": ..., <payload fields>, "timestamp": ...}.
type Envelope struct {
	Type      string
	Timestamp time.Time
	Data      any
}

// NewEnvelope stamps a payload with the current UTC time.
func NewEnvelope(msgType string, data any) Envelope {
	return Envelope{Type: msgType, Timestamp: time.Now().UTC(), Data: data}
}

// MarshalJSON flattens object payloads; any other payload goes under "data".
func (e Envelope) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			if err := json.Unmarshal(trimmed, &fields); err != nil {
				return nil, err
			}
		} else if !bytes.Equal(trimmed, []byte("null")) {
			fields["data"] = trimmed
		}
	}

	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	fields["timestamp"] = ts
	return json.Marshal(fields)
}
