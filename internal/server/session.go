package server

import (
	"log/slog"

	"github.com/Tyrowin/lanchat/internal/presence"
)

// Session translates transport signals and decoded envelopes into router
// calls. It owns no state; room membership is derived per connection.
type Session struct {
	log    *slog.Logger
	router *Router
}

// NewSession returns a Session that delegates every event to router.
func NewSession(log *slog.Logger, router *Router) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{log: log, router: router}
}

// RoomFor returns the room a connection belongs to.
func (s *Session) RoomFor(presence.ConnectionID) presence.RoomID {
	return presence.MainRoom
}

// Connect records a new transport session. Nothing is broadcast until join.
func (s *Session) Connect(id presence.ConnectionID, addr string) {
	s.log.Debug("session.connect", "conn_id", id, "addr", addr, "room", s.RoomFor(id))
}

// Handle dispatches one inbound envelope.
func (s *Session) Handle(id presence.ConnectionID, env Envelope) {
	room := s.RoomFor(id)

	switch env.Event {
	case EventJoin:
		s.router.Join(room, id, DecodeJoin(env.Data))
	case EventChat:
		if !s.router.Chat(room, id, DecodeChat(env.Data)) {
			s.log.Debug("session.chat_dropped", "conn_id", id, "reason", "empty")
		}
	case EventTyping:
		s.router.Typing(room, id, DecodeTyping(env.Data))
	default:
		s.log.Debug("session.unknown_event", "conn_id", id, "event", env.Event)
	}
}

// Disconnect tears the connection down. It always runs to completion.
func (s *Session) Disconnect(id presence.ConnectionID) {
	nick, ok := s.router.Disconnect(s.RoomFor(id), id)
	if !ok {
		s.log.Debug("session.disconnect_before_join", "conn_id", id)
		return
	}
	s.log.Debug("session.disconnect", "conn_id", id, "nickname", nick)
}
