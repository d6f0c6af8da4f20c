// Package server defines the JSON envelopes exchanged over the WebSocket and
// the lenient decoding rules applied to client payloads.
package server

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Client to server events.
const (
	EventJoin   = "join"
	EventChat   = "chat"
	EventTyping = "typing"
)

// Server to client events. EventChat and EventTyping are reused.
const (
	EventUserCount = "user_count"
	EventUserList  = "user_list"
)

// SystemNickname is the author of join/leave announcements.
const SystemNickname = "system"

// MaxTextLength caps chat text, in runes.
const MaxTextLength = 2000

var validate = validator.New()

// Envelope is an inbound frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event" validate:"required,oneof=join chat typing"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame broadcast to a room.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// ChatMessage is the payload of an outbound chat event.
type ChatMessage struct {
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
}

// TypingList is the payload of an outbound typing event.
type TypingList struct {
	List []string `json:"list"`
}

// JoinPayload is the decoded data of a join event. An empty Nickname asks
// for a generated one.
type JoinPayload struct {
	Nickname string
}

// ChatPayload is the decoded data of a chat event.
type ChatPayload struct {
	Text string
}

// TypingPayload is the decoded data of a typing event.
type TypingPayload struct {
	State bool
}

// UserCountEvent carries the number of joined members.
func UserCountEvent(n int) Event { return Event{Name: EventUserCount, Data: n} }

// UserListEvent carries member nicknames in join order, never null.
func UserListEvent(nicknames []string) Event {
	if nicknames == nil {
		nicknames = []string{}
	}
	return Event{Name: EventUserList, Data: nicknames}
}

// ChatEvent wraps one chat message, user or system.
func ChatEvent(msg ChatMessage) Event { return Event{Name: EventChat, Data: msg} }

// TypingEvent carries the nicknames currently typing as {"list": [...]}.
func TypingEvent(nicknames []string) Event {
	if nicknames == nil {
		nicknames = []string{}
	}
	return Event{Name: EventTyping, Data: TypingList{List: nicknames}}
}

// DecodeEnvelope parses and validates one inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodeJoin reads the optional nickname. Anything but a JSON string counts as absent.
func DecodeJoin(raw json.RawMessage) JoinPayload {
	nickname, _ := decodeFields(raw)["nickname"].(string)
	return JoinPayload{Nickname: nickname}
}

// DecodeChat reads the message text. Anything but a JSON string counts as empty.
func DecodeChat(raw json.RawMessage) ChatPayload {
	text, _ := decodeFields(raw)["text"].(string)
	return ChatPayload{Text: text}
}

// DecodeTyping reads the typing flag using truthiness, so 1 and "yes" mean true.
func DecodeTyping(raw json.RawMessage) TypingPayload {
	return TypingPayload{State: truthy(decodeFields(raw)["state"])}
}

func decodeFields(raw json.RawMessage) map[string]any {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields
	}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return map[string]any{}
	}
	return fields
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
