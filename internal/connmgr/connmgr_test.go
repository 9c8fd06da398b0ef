package connmgr

import (
	"testing"
	"time"
)

type fakeSub struct {
	id     string
	inbox  chan []byte
	closed bool
	accept bool
}

func newFakeSub(id string) *fakeSub {
	return &fakeSub{id: id, inbox: make(chan []byte, 8), accept: true}
}

func (f *fakeSub) ID() string { return f.id }
func (f *fakeSub) Send(payload []byte) bool {
	if !f.accept {
		return false
	}
	select {
	case f.inbox <- payload:
		return true
	default:
		return false
	}
}
func (f *fakeSub) Close() { f.closed = true }

func TestRegisterRejectsAtCapacity(t *testing.T) {
	m := NewManager(Config{MaxConnections: 1, HeartbeatInterval: time.Second})
	if err := m.Register(newFakeSub("a")); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := m.Register(newFakeSub("b")); err == nil {
		t.Fatal("expected ErrCapacity on second register")
	}
}

func TestSubscribeAndPublishFansOutToAllSubscribers(t *testing.T) {
	m := NewManager(DefaultConfig())
	a := newFakeSub("a")
	b := newFakeSub("b")
	m.Register(a)
	m.Register(b)
	m.Subscribe("a", "req-1")
	m.Subscribe("b", "req-1")

	delivered := m.Publish("req-1", []byte("chunk"))
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
}

func TestPublishToUnknownRequestDeliversNothing(t *testing.T) {
	m := NewManager(DefaultConfig())
	if d := m.Publish("nobody-subscribed", []byte("x")); d != 0 {
		t.Fatalf("expected 0 deliveries, got %d", d)
	}
}

func TestUnsubscribeStopsDeliveryWithoutClosingConnection(t *testing.T) {
	m := NewManager(DefaultConfig())
	a := newFakeSub("a")
	m.Register(a)
	m.Subscribe("a", "req-1")
	m.Unsubscribe("a", "req-1")

	if d := m.Publish("req-1", []byte("x")); d != 0 {
		t.Fatalf("expected 0 deliveries after unsubscribe, got %d", d)
	}
	if a.closed {
		t.Fatal("unsubscribe must not close the underlying connection")
	}
}

func TestManyToManySubscriptionAcrossRequests(t *testing.T) {
	m := NewManager(DefaultConfig())
	a := newFakeSub("a")
	m.Register(a)
	m.Subscribe("a", "req-1")
	m.Subscribe("a", "req-2")

	if m.SubscriberCount("req-1") != 1 || m.SubscriberCount("req-2") != 1 {
		t.Fatal("expected connection a subscribed to both requests")
	}

	m.Unregister("a")
	if m.SubscriberCount("req-1") != 0 || m.SubscriberCount("req-2") != 0 {
		t.Fatal("expected unregister to clear every subscription the connection held")
	}
	if !a.closed {
		t.Fatal("expected unregister to close the subscriber")
	}
}

func TestPublishDropsDeadSubscriberWithoutBlockingOthers(t *testing.T) {
	m := NewManager(DefaultConfig())
	dead := newFakeSub("dead")
	dead.accept = false
	alive := newFakeSub("alive")
	m.Register(dead)
	m.Register(alive)
	m.Subscribe("dead", "req-1")
	m.Subscribe("alive", "req-1")

	delivered := m.Publish("req-1", []byte("x"))
	if delivered != 1 {
		t.Fatalf("expected 1 successful delivery, got %d", delivered)
	}
	if m.Len() != 1 {
		t.Fatalf("expected the dead subscriber to be unregistered, len=%d", m.Len())
	}
}
