package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Inbound relay messages are decoded into one of the envelope variants below
// and consumed from a single channel, so there is no dynamic listener
// registration anywhere in the client.

type Envelope interface {
	Label() string
}

// EventEnvelope is ["EVENT", subscriptionId, event].
type EventEnvelope struct {
	SubscriptionID string
	Event          *Event
}

// EOSEEnvelope is ["EOSE", subscriptionId]: historical backfill is complete.
type EOSEEnvelope struct {
	SubscriptionID string
}

// OKEnvelope is ["OK", eventId, success, message].
type OKEnvelope struct {
	EventID string
	OK      bool
	Reason  string
}

// NoticeEnvelope is ["NOTICE", message].
type NoticeEnvelope struct {
	Message string
}

func (EventEnvelope) Label() string  { return "EVENT" }
func (EOSEEnvelope) Label() string   { return "EOSE" }
func (OKEnvelope) Label() string     { return "OK" }
func (NoticeEnvelope) Label() string { return "NOTICE" }

// ParseEnvelope decodes one inbound frame. Unknown labels and malformed
// frames are errors; the caller logs and drops them.
func ParseEnvelope(data []byte) (Envelope, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("frame is not a JSON array")
	}
	arr := parsed.Array()
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	switch label := arr[0].Str; label {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT frame with %d elements", len(arr))
		}
		var ev Event
		if err := json.Unmarshal([]byte(arr[2].Raw), &ev); err != nil {
			return nil, fmt.Errorf("EVENT frame body: %w", err)
		}
		return EventEnvelope{SubscriptionID: arr[1].Str, Event: &ev}, nil
	case "EOSE":
		if len(arr) < 2 {
			return nil, fmt.Errorf("EOSE frame with no subscription id")
		}
		return EOSEEnvelope{SubscriptionID: arr[1].Str}, nil
	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK frame with %d elements", len(arr))
		}
		ok := OKEnvelope{EventID: arr[1].Str, OK: arr[2].Bool()}
		if len(arr) > 3 {
			ok.Reason = arr[3].Str
		}
		return ok, nil
	case "NOTICE":
		if len(arr) < 2 {
			return nil, fmt.Errorf("NOTICE frame with no message")
		}
		return NoticeEnvelope{Message: arr[1].Str}, nil
	default:
		return nil, fmt.Errorf("unknown frame label %q", label)
	}
}

// EventMessage renders the outbound ["EVENT", event] frame.
func EventMessage(e *Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", e})
}

// ReqMessage renders the outbound ["REQ", subscriptionId, filter...] frame.
func ReqMessage(subscriptionID string, filters Filters) ([]byte, error) {
	parts := make([]interface{}, 0, 2+len(filters))
	parts = append(parts, "REQ", subscriptionID)
	for _, f := range filters {
		parts = append(parts, f)
	}
	return json.Marshal(parts)
}

// CloseMessage renders the outbound ["CLOSE", subscriptionId] frame.
func CloseMessage(subscriptionID string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", subscriptionID})
}
