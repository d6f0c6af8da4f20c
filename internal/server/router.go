//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=mocks/mock_broadcaster.go -package=mocks
package server

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/lanchat/internal/nickname"
	"github.com/Tyrowin/lanchat/internal/presence"
)

// Broadcaster delivers an event to every member of a room. Implementations
// must only enqueue; they must not wait for delivery.
type Broadcaster interface {
	Broadcast(room presence.RoomID, evt Event)
}

// Router applies join, leave, chat and typing events to the registry and
// emits the resulting broadcasts. Each operation runs under one lock, so the
// registry mutation, the snapshot and the enqueue of its broadcasts are never
// interleaved with another event.
type Router struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry *presence.Registry
	out      Broadcaster
	now      func() time.Time
	nickname func() string
}

// NewRouter returns a Router that mutates registry and emits to out.
func NewRouter(log *slog.Logger, registry *presence.Registry, out Broadcaster) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:      log,
		registry: registry,
		out:      out,
		now:      time.Now,
		nickname: nickname.Generate,
	}
}

// Join registers the connection and announces it. The supplied nickname is
// used on first join only; an empty one is replaced by a generated name.
// A connection that already joined keeps its nickname and nothing is
// broadcast. It returns the nickname the connection ends up with.
func (r *Router) Join(room presence.RoomID, id presence.ConnectionID, p JoinPayload) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.registry.Nickname(room, id); ok {
		r.log.Debug("router.rejoin_ignored", "conn_id", id, "nickname", existing)
		return existing
	}

	nick := p.Nickname
	if nick == "" {
		nick = r.nickname()
	}

	r.registry.Register(room, id, nick)
	snap := r.registry.Snapshot(room)
	r.log.Debug("router.join", "conn_id", id, "nickname", nick, "count", snap.Count)

	r.out.Broadcast(room, UserCountEvent(snap.Count))
	r.out.Broadcast(room, UserListEvent(snap.Nicknames))
	r.out.Broadcast(room, r.systemMessage(nick+" joined"))
	return nick
}

// Disconnect unregisters the connection and announces the departure. A
// connection that never joined produces no broadcast and ok is false.
func (r *Router) Disconnect(room presence.RoomID, id presence.ConnectionID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nick, ok := r.registry.Unregister(room, id)
	if !ok {
		return "", false
	}
	snap := r.registry.Snapshot(room)
	r.log.Debug("router.leave", "conn_id", id, "nickname", nick, "count", snap.Count)

	r.out.Broadcast(room, r.systemMessage(nick+" left"))
	r.out.Broadcast(room, TypingEvent(snap.Typing))
	r.out.Broadcast(room, UserCountEvent(snap.Count))
	r.out.Broadcast(room, UserListEvent(snap.Nicknames))
	return nick, true
}

// Chat broadcasts a trimmed, truncated message. Blank text is dropped and
// false is returned.
func (r *Router) Chat(room presence.RoomID, id presence.ConnectionID, p ChatPayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	nick, ok := r.registry.Nickname(room, id)
	if !ok {
		nick = r.nickname()
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		return false
	}

	r.out.Broadcast(room, ChatEvent(ChatMessage{
		Nickname:  nick,
		Text:      truncate(text, MaxTextLength),
		Timestamp: r.timestamp(),
	}))
	return true
}

// Typing updates the typing flag and always broadcasts the current list.
func (r *Router) Typing(room presence.RoomID, id presence.ConnectionID, p TypingPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registry.SetTyping(room, id, p.State)
	r.out.Broadcast(room, TypingEvent(r.registry.Snapshot(room).Typing))
}

func (r *Router) systemMessage(text string) Event {
	return ChatEvent(ChatMessage{
		Nickname:  SystemNickname,
		Text:      text,
		Timestamp: r.timestamp(),
	})
}

func (r *Router) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}
