package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/stretchr/testify/require"
)

func testSession(userID string) *Session {
	return newSession(model.Identity{ID: userID, Email: userID + "@example.com"}, &fakeConn{})
}

func TestRegistry_Add_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s := testSession("alice")

	// When the same session joins twice
	req.True(registry.Add(s, "general"))
	req.False(registry.Add(s, "general"))

	// Then it is a member once
	req.Equal([]string{s.ID}, registry.MembersOf("general"))
	req.Len(registry.Sessions("general"), 1)
}

func TestRegistry_Remove_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s := testSession("alice")

	req.False(registry.Remove(s.ID, "general"))

	registry.Add(s, "general")
	req.True(registry.Remove(s.ID, "general"))
	req.False(registry.Remove(s.ID, "general"))

	// And the room doesn't exist anymore
	req.Empty(registry.MembersOf("general"))
	req.Zero(registry.Len())
}

func TestRegistry_RemoveAll_NoLeak(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := testSession("alice")
	bob := testSession("bob")

	// Given alice in three rooms and bob in one of them
	for _, room := range []string{"general", "random", "dev"} {
		registry.Add(alice, room)
	}
	registry.Add(bob, "dev")

	// When alice disconnects
	rooms := registry.RemoveAll(alice.ID)

	// Then she is gone from every room
	req.Equal([]string{"dev", "general", "random"}, rooms)
	for _, room := range rooms {
		req.NotContains(registry.MembersOf(room), alice.ID)
	}
	req.Empty(registry.sessions[alice.ID])

	// And only bob's room survives
	req.Equal(1, registry.Len())
	req.Equal([]string{bob.ID}, registry.MembersOf("dev"))

	// And a second call is a no-op
	req.Empty(registry.RemoveAll(alice.ID))
}

func TestRegistry_UserIDs_Distinct(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given alice connected twice and bob once
	registry.Add(testSession("alice"), "general")
	registry.Add(testSession("alice"), "general")
	registry.Add(testSession("bob"), "general")

	req.Len(registry.MembersOf("general"), 3)
	req.Equal([]string{"alice", "bob"}, registry.UserIDs("general"))
	req.Empty(registry.UserIDs("empty"))
}

func TestRegistry_Concurrent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := testSession(fmt.Sprintf("user-%d", i))
			for r := 0; r < 5; r++ {
				registry.Add(s, fmt.Sprintf("room-%d", r))
				_ = registry.Sessions(fmt.Sprintf("room-%d", r))
			}
			registry.RemoveAll(s.ID)
		}(i)
	}
	wg.Wait()

	req.Zero(registry.Len())
	req.Empty(registry.sessions)
}
