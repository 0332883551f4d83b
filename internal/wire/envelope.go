// Package wire defines the envelope exchanged between the relay and its
// clients, and between producers and the relay over the bus.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bizmon/eventrelay/internal/channel"
)

// RawKey is the data key used when a bus payload is not a JSON object.
const RawKey = "raw"

// Envelope is one event as it travels over the transport.
type Envelope struct {
	Type      channel.Channel `json:"type"`
	Data      map[string]any  `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NowMillis returns t as integer milliseconds since the epoch.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromBus builds the envelope for a payload received on a bus channel.
// Payloads that are not a JSON object are kept verbatim under RawKey so a
// malformed producer never stops delivery.
func FromBus(ch channel.Channel, payload string, now time.Time) Envelope {
	return Envelope{
		Type:      ch,
		Data:      decodePayload(payload),
		Timestamp: NowMillis(now),
	}
}

func decodePayload(payload string) map[string]any {
	trimmed := bytes.TrimSpace([]byte(payload))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			return obj
		}
	}
	return map[string]any{RawKey: payload}
}

// Encode serializes the envelope to a text frame body.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses a text frame. A frame without a type decodes to an envelope
// with a zero Type so the router can report it; an unknown type or a body
// that is not an envelope is an error.
func Decode(frame []byte) (Envelope, error) {
	var hdr struct {
		Type      *string         `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(frame, &hdr); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode: %w", err)
	}

	env := Envelope{Timestamp: hdr.Timestamp}
	if hdr.Type != nil && *hdr.Type != "" {
		ch, ok := channel.Parse(*hdr.Type)
		if !ok {
			return Envelope{}, &channel.UnknownError{Wire: *hdr.Type}
		}
		env.Type = ch
	}

	if len(hdr.Data) > 0 && !bytes.Equal(hdr.Data, []byte("null")) {
		if err := json.Unmarshal(hdr.Data, &env.Data); err != nil {
			return Envelope{}, fmt.Errorf("wire: decode data for %q: %w", env.Type, err)
		}
	}
	return env, nil
}

// Stamp sets the timestamp to now if the envelope has none.
func (e *Envelope) Stamp(now time.Time) {
	if e.Timestamp == 0 {
		e.Timestamp = NowMillis(now)
	}
}
