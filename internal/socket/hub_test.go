package socket

import (
	"encoding/json"
	"testing"
)

func newHubClient(hub *Hub) *Client {
	return &Client{id: "test", hub: hub, send: make(chan []byte, 8)}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub(testLogger())
	client := newHubClient(hub)
	hub.Register(client)

	hub.Join(client, ComponentsRoom)
	hub.Join(client, ComponentsRoom)

	if !hub.InRoom(client, ComponentsRoom) {
		t.Fatal("client not in room after join")
	}

	hub.Notify(ComponentsRoom, TypeComponentsChange)
	if got := len(client.send); got != 1 {
		t.Errorf("double join delivered %d notifications, want 1", got)
	}
}

func TestHubLeaveNonMemberIsNoop(t *testing.T) {
	hub := NewHub(testLogger())
	client := newHubClient(hub)
	hub.Register(client)

	hub.Leave(client, ComponentsRoom) // never joined
	hub.Leave(client, "no-such-room")

	if hub.InRoom(client, ComponentsRoom) {
		t.Error("client in room it never joined")
	}
}

func TestHubNotifyReachesOnlyMembers(t *testing.T) {
	hub := NewHub(testLogger())
	member := newHubClient(hub)
	outsider := newHubClient(hub)
	hub.Register(member)
	hub.Register(outsider)
	hub.Join(member, ComponentsRoom)

	hub.Notify(ComponentsRoom, TypeComponentsChange)

	select {
	case data := <-member.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decoding notification: %v", err)
		}
		if env.Type != TypeComponentsChange {
			t.Errorf("notification type = %q, want %q", env.Type, TypeComponentsChange)
		}
	default:
		t.Fatal("member received no notification")
	}

	if len(outsider.send) != 0 {
		t.Error("outsider received a notification")
	}
}

func TestHubNotifySkipsSlowClients(t *testing.T) {
	hub := NewHub(testLogger())
	slow := &Client{id: "slow", hub: hub, send: make(chan []byte)} // no buffer
	hub.Register(slow)
	hub.Join(slow, ComponentsRoom)

	// Nothing reads slow.send; Notify must not block.
	hub.Notify(ComponentsRoom, TypeComponentsChange)
}

func TestHubUnregisterRemovesFromRooms(t *testing.T) {
	hub := NewHub(testLogger())
	client := newHubClient(hub)
	hub.Register(client)
	hub.Join(client, ComponentsRoom)

	hub.Unregister(client)

	if hub.InRoom(client, ComponentsRoom) {
		t.Error("client still in room after unregister")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}

	// A broadcast after disconnect must not panic on the closed channel.
	hub.Join(client, ComponentsRoom) // ignored: not registered
	hub.Notify(ComponentsRoom, TypeComponentsChange)
}
