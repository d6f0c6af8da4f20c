package presence

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := ConnectionID(uuid.NewString())

	// Given an empty room
	req.Equal(0, registry.Snapshot(MainRoom).Count)

	// When a connection registers
	registry.Register(MainRoom, id, "calm-otter-1")

	// Then it is counted and listed
	snap := registry.Snapshot(MainRoom)
	req.Equal(1, snap.Count)
	req.Equal([]string{"calm-otter-1"}, snap.Nicknames)
	req.Empty(snap.Typing)

	nick, ok := registry.Nickname(MainRoom, id)
	req.True(ok)
	req.Equal("calm-otter-1", nick)
}

func TestRegistry_Register_Overwrite_Keeps_Position(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := ConnectionID(uuid.NewString())
	second := ConnectionID(uuid.NewString())

	registry.Register(MainRoom, first, "a")
	registry.Register(MainRoom, second, "b")

	// When the first connection registers again
	registry.Register(MainRoom, first, "c")

	// Then it is overwritten in place, not duplicated
	snap := registry.Snapshot(MainRoom)
	req.Equal(2, snap.Count)
	req.Equal([]string{"c", "b"}, snap.Nicknames)
}

func TestRegistry_Duplicate_Nicknames_Allowed(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(MainRoom, "c1", "fox")
	registry.Register(MainRoom, "c2", "fox")

	snap := registry.Snapshot(MainRoom)
	req.Equal(2, snap.Count)
	req.Equal([]string{"fox", "fox"}, snap.Nicknames)
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(MainRoom, "c1", "a")
	registry.Register(MainRoom, "c2", "b")

	// When a registered connection leaves
	nick, ok := registry.Unregister(MainRoom, "c1")

	// Then its nickname is returned and it disappears
	req.True(ok)
	req.Equal("a", nick)
	req.Equal([]string{"b"}, registry.Snapshot(MainRoom).Nicknames)
	req.Equal([]ConnectionID{"c2"}, registry.Members(MainRoom))
}

func TestRegistry_Unregister_Never_Registered(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	nick, ok := registry.Unregister(MainRoom, "ghost")

	req.False(ok)
	req.Empty(nick)
}

func TestRegistry_Unregister_Last_Member_Drops_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(MainRoom, "c1", "a")
	registry.Unregister(MainRoom, "c1")

	req.Empty(registry.rooms)
	req.Nil(registry.Members(MainRoom))
	snap := registry.Snapshot(MainRoom)
	req.Equal(0, snap.Count)
	req.NotNil(snap.Nicknames)
	req.NotNil(snap.Typing)
}

func TestRegistry_SetTyping(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(MainRoom, "c1", "a")
	registry.Register(MainRoom, "c2", "b")

	registry.SetTyping(MainRoom, "c2", true)
	req.Equal([]string{"b"}, registry.Snapshot(MainRoom).Typing)

	registry.SetTyping(MainRoom, "c1", true)
	req.Equal([]string{"a", "b"}, registry.Snapshot(MainRoom).Typing)

	registry.SetTyping(MainRoom, "c2", false)
	req.Equal([]string{"a"}, registry.Snapshot(MainRoom).Typing)
}

func TestRegistry_SetTyping_Unknown_Connection_Is_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.NotPanics(func() { registry.SetTyping(MainRoom, "ghost", true) })

	// A later registration with the same id must not inherit a stale flag
	registry.Register(MainRoom, "ghost", "late")
	req.Empty(registry.Snapshot(MainRoom).Typing)
}

func TestRegistry_Typing_Cleared_On_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given A is typing
	registry.Register(MainRoom, "a", "alpha")
	registry.Register(MainRoom, "b", "beta")
	registry.SetTyping(MainRoom, "a", true)

	// When A leaves without clearing the flag
	registry.Unregister(MainRoom, "a")

	// Then A is not reported as typing
	req.Empty(registry.Snapshot(MainRoom).Typing)

	// And re-registering the same id starts clean
	registry.Register(MainRoom, "a", "alpha")
	req.Empty(registry.Snapshot(MainRoom).Typing)
}

func TestRegistry_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	other := RoomID("other")

	registry.Register(MainRoom, "c1", "a")
	registry.Register(other, "c2", "b")

	req.Equal([]string{"a"}, registry.Snapshot(MainRoom).Nicknames)
	req.Equal([]string{"b"}, registry.Snapshot(other).Nicknames)

	_, ok := registry.Unregister(MainRoom, "c2")
	req.False(ok)
}

func TestRegistry_Count_Tracks_Open_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rng := rand.New(rand.NewPCG(1, 2))
	open := make(map[ConnectionID]struct{})

	// Random join/leave sequences, including leaves for ids that never joined
	for i := 0; i < 2000; i++ {
		id := ConnectionID(fmt.Sprintf("c%d", rng.IntN(50)))
		if rng.IntN(2) == 0 {
			registry.Register(MainRoom, id, string(id))
			open[id] = struct{}{}
		} else {
			_, ok := registry.Unregister(MainRoom, id)
			_, wasOpen := open[id]
			req.Equal(wasOpen, ok)
			delete(open, id)
		}
		if rng.IntN(3) == 0 {
			registry.SetTyping(MainRoom, id, rng.IntN(2) == 0)
		}

		snap := registry.Snapshot(MainRoom)
		req.Equal(len(open), snap.Count)
		req.Len(snap.Nicknames, len(open))
		req.LessOrEqual(len(snap.Typing), snap.Count)
	}
}

func TestRegistry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := ConnectionID(fmt.Sprintf("c%d", n))
			registry.Register(MainRoom, id, string(id))
			registry.SetTyping(MainRoom, id, true)
			_ = registry.Snapshot(MainRoom)
			if n%2 == 0 {
				registry.Unregister(MainRoom, id)
			}
		}(i)
	}
	wg.Wait()

	snap := registry.Snapshot(MainRoom)
	req.Equal(10, snap.Count)
	req.Len(snap.Typing, 10)
}
