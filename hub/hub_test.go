package hub

import (
	"context"
	"testing"
	"time"

	"github.com/roomcast/roomcast/model"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	logger := zerolog.Nop()
	return New(&logger)
}

func recv(t *testing.T, wire model.Wire) []byte {
	t.Helper()
	select {
	case frame := <-wire.TX:
		return frame
	default:
		t.Fatal("expected a frame on the wire")
		return nil
	}
}

func TestBroadcastReachesEverySession(t *testing.T) {
	h := newTestHub()
	alice, bob := model.NewWire(), model.NewWire()
	h.Connect("alice", alice)
	h.Connect("bob", bob)

	h.Broadcast([]byte("hello"))

	if string(recv(t, alice)) != "hello" {
		t.Fatal("sender should receive its own broadcast")
	}
	if string(recv(t, bob)) != "hello" {
		t.Fatal("peer should receive the broadcast")
	}
}

func TestSendTargetsOneSession(t *testing.T) {
	h := newTestHub()
	alice, bob := model.NewWire(), model.NewWire()
	h.Connect("alice", alice)
	h.Connect("bob", bob)

	if !h.Send(context.Background(), "bob", []byte("psst")) {
		t.Fatal("send to an open session should succeed")
	}
	recv(t, bob)

	select {
	case <-alice.TX:
		t.Fatal("other sessions must not receive a direct send")
	default:
	}
}

func TestSendToUnknownSession(t *testing.T) {
	h := newTestHub()

	if h.Send(context.Background(), "ghost", []byte("psst")) {
		t.Fatal("send to an unknown session should report failure")
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	h := newTestHub()
	alice := model.NewWire()
	h.Connect("alice", alice)
	h.Disconnect("alice")

	if h.Count() != 0 {
		t.Fatalf("expected empty hub, got %d sessions", h.Count())
	}

	h.Broadcast([]byte("hello"))
	select {
	case <-alice.TX:
		t.Fatal("disconnected session must not receive broadcasts")
	default:
	}
}

func TestDeadEndpointDoesNotStallBroadcast(t *testing.T) {
	orig := sendTimeout
	sendTimeout = 20 * time.Millisecond
	defer func() { sendTimeout = orig }()

	h := newTestHub()
	dead := model.Wire{TX: make(chan []byte)} // nobody ever reads
	live := model.NewWire()
	h.Connect("dead", dead)
	h.Connect("live", live)

	done := make(chan struct{})
	go func() {
		h.Broadcast([]byte("hello"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast stalled on a dead endpoint")
	}

	select {
	case <-live.TX:
	default:
		t.Fatal("live session should still receive the broadcast")
	}
}
