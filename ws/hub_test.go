package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesGroupMembers(t *testing.T) {
	hub := NewHub()
	alice := NewClient(nil)
	bob := NewClient(nil)
	carol := NewClient(nil)

	hub.Register(GroupForUser(1), alice)
	hub.Register(GroupForUser(1), bob)
	hub.Register(GroupForUser(2), carol)

	hub.Publish(GroupForUser(1), map[string]interface{}{"symbol": "AAPL"})

	for _, client := range []*Client{alice, bob} {
		select {
		case data := <-client.send:
			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &payload))
			assert.Equal(t, "AAPL", payload["symbol"])
		default:
			t.Fatalf("client %s received nothing", client.ID)
		}
	}

	select {
	case <-carol.send:
		t.Fatal("publish leaked into another user's group")
	default:
	}
}

func TestPublishUnknownGroupIsNoOp(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Publish(GroupForUser(42), map[string]interface{}{"symbol": "AAPL"})
}

func TestUnregisterDropsEmptyGroup(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)
	group := GroupForUser(7)

	hub.Register(group, client)
	assert.Equal(t, 1, hub.GroupSize(group))

	hub.Unregister(group, client)
	assert.Equal(t, 0, hub.GroupSize(group))

	hub.Publish(group, map[string]interface{}{"symbol": "AAPL"})
	select {
	case <-client.send:
		t.Fatal("unregistered client still receives updates")
	default:
	}
}

func TestPublishSkipsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := NewClient(nil)
	fast := NewClient(nil)
	group := GroupForUser(9)

	hub.Register(group, slow)
	hub.Register(group, fast)

	// Fill the slow client's buffer; nobody is draining it.
	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("{}")
	}

	// Must not block even though one member cannot accept the update.
	hub.Publish(group, map[string]interface{}{"symbol": "AAPL"})

	select {
	case <-fast.send:
	default:
		t.Fatal("fast client starved by slow group member")
	}
}

func TestGroupForUser(t *testing.T) {
	assert.Equal(t, "user_15", GroupForUser(15))
}
