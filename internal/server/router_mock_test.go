package server_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/lanchat/internal/presence"
	"github.com/Tyrowin/lanchat/internal/server"
	"github.com/Tyrowin/lanchat/internal/server/mocks"
)

func TestRouter_Whitespace_Chat_Broadcasts_Nothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	out := mocks.NewMockBroadcaster(ctrl)
	registry := presence.NewRegistry()
	router := server.NewRouter(nil, registry, out)

	out.EXPECT().Broadcast(presence.MainRoom, gomock.Any()).Times(3)
	router.Join(presence.MainRoom, "c1", server.JoinPayload{Nickname: "alice"})

	// Given a whitespace-only message, no further broadcast is expected
	req.False(router.Chat(presence.MainRoom, "c1", server.ChatPayload{Text: "   "}))
}

func TestRouter_Leave_Broadcast_Order(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockBroadcaster(ctrl)
	registry := presence.NewRegistry()
	registry.Register(presence.MainRoom, "c1", "alice")
	registry.Register(presence.MainRoom, "c2", "bob")
	router := server.NewRouter(nil, registry, out)

	gomock.InOrder(
		out.EXPECT().Broadcast(presence.MainRoom, eventNamed(server.EventChat)),
		out.EXPECT().Broadcast(presence.MainRoom, server.TypingEvent(nil)),
		out.EXPECT().Broadcast(presence.MainRoom, server.UserCountEvent(1)),
		out.EXPECT().Broadcast(presence.MainRoom, server.UserListEvent([]string{"alice"})),
	)

	router.Disconnect(presence.MainRoom, "c2")
}

type eventNamed string

func (e eventNamed) Matches(x any) bool {
	evt, ok := x.(server.Event)
	return ok && evt.Name == string(e)
}

func (e eventNamed) String() string { return "event named " + string(e) }
