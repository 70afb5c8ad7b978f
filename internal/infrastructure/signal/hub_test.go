package signal

import (
	"encoding/json"
	"testing"

	"devstream/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(ids ...domain.ConnectionID) (*Hub, map[domain.ConnectionID]*client) {
	hub := NewHub(zap.NewNop().Sugar())
	clients := make(map[domain.ConnectionID]*client)
	for _, id := range ids {
		c := newClient(id, domain.Identity{ID: string(id)}, nil, 4, nil)
		hub.register(c)
		clients[id] = c
	}
	return hub, clients
}

func drain(c *client) []string {
	var events []string
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return events
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				events = append(events, env.Event)
			}
		default:
			return events
		}
	}
}

func TestHub_RoomGroups(t *testing.T) {
	hub, clients := newTestHub("a", "b", "c")

	hub.Subscribe("demo", "a")
	hub.Subscribe("demo", "b")
	hub.Subscribe("demo", "ghost")
	assert.Equal(t, 2, hub.GroupSize("demo"))

	hub.SendToRoom("demo", "stream-ended", domain.StreamEnded{RoomID: "demo"})
	assert.Equal(t, []string{"stream-ended"}, drain(clients["a"]))
	assert.Equal(t, []string{"stream-ended"}, drain(clients["b"]))
	assert.Empty(t, drain(clients["c"]))

	hub.Unsubscribe("demo", "a")
	assert.Equal(t, 1, hub.GroupSize("demo"))

	hub.DropRoom("demo")
	assert.Zero(t, hub.GroupSize("demo"))
}

func TestHub_BroadcastAndSendTo(t *testing.T) {
	hub, clients := newTestHub("a", "b")

	hub.Broadcast("chatMessage", map[string]string{"message": "hi"})
	hub.SendTo("b", "userInfo", domain.Identity{ID: "b"})
	hub.SendTo("ghost", "userInfo", domain.Identity{})

	assert.Equal(t, []string{"chatMessage"}, drain(clients["a"]))
	assert.Equal(t, []string{"chatMessage", "userInfo"}, drain(clients["b"]))
}

func TestHub_FullQueueDrops(t *testing.T) {
	hub, clients := newTestHub("a")

	for i := 0; i < 10; i++ {
		hub.SendTo("a", "chatMessage", i)
	}
	assert.Len(t, drain(clients["a"]), 4)
}

func TestHub_DisconnectAndUnregister(t *testing.T) {
	hub, clients := newTestHub("a", "b")
	hub.Subscribe("demo", "a")
	hub.SendTo("a", "banned", domain.BanNotice{Reason: "spam"})

	hub.Disconnect("a")
	// queued messages survive the close so they can be flushed
	assert.Equal(t, []string{"banned"}, drain(clients["a"]))
	assert.False(t, clients["a"].enqueue([]byte("late")))

	hub.unregister("a")
	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Zero(t, hub.GroupSize("demo"))

	// closing twice is harmless
	require.NotPanics(t, func() {
		clients["a"].close()
		hub.Disconnect("a")
	})
}

func TestHub_Encode(t *testing.T) {
	data, err := encode(domain.EventStreamStarted, domain.StreamStarted{RoomID: "demo"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stream-started","data":{"roomId":"demo"}}`, string(data))
}
