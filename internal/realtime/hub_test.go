package realtime

import (
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_RoomScoping(t *testing.T) {
	hub := NewHub()
	forestSub := hub.Subscribe(ForestRoom(1))
	adminSub := hub.Subscribe(AdminRoom)
	defer forestSub.Close()
	defer adminSub.Close()

	hub.Broadcast(ForestRoom(1), NewEvent("tree.created", nil))

	ev := recv(t, forestSub)
	if ev.Type != "tree.created" || ev.Room != ForestRoom(1) {
		t.Errorf("unexpected event: %+v", ev)
	}
	select {
	case ev := <-adminSub.C():
		t.Errorf("admin subscriber should not receive forest events, got %+v", ev)
	default:
	}
}

func TestHub_MultipleRooms_SingleDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(UserRoom(1), AdminRoom)
	defer sub.Close()

	hub.Broadcast(AdminRoom, NewEvent("bulk.summary", nil))
	ev := recv(t, sub)
	if ev.Room != AdminRoom {
		t.Errorf("unexpected room: %q", ev.Room)
	}
	select {
	case ev := <-sub.C():
		t.Errorf("expected single delivery, got extra %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(AdminRoom)
	defer sub.Close()

	// Overflow the buffer; the hub must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast(AdminRoom, NewEvent("heartbeat", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	// The buffered portion is still readable.
	recv(t, sub)
}

func TestHub_CloseDetaches(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(AdminRoom)
	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}
	sub.Close()
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", hub.SubscriberCount())
	}
	// Double close must not panic.
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after Close")
	}
}

func TestRoomNames(t *testing.T) {
	if UserRoom(42) != "user:42" {
		t.Errorf("UserRoom(42) = %q", UserRoom(42))
	}
	if ForestRoom(7) != "forest:7" {
		t.Errorf("ForestRoom(7) = %q", ForestRoom(7))
	}
}
