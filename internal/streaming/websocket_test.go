package streaming

import (
	"testing"

	"github.com/modelgate/gateway/internal/connmgr"
)

func TestPublishFrameDeliversMarshaledPayload(t *testing.T) {
	mgr := connmgr.NewManager(connmgr.DefaultConfig())
	sub := &recordingSubscriber{id: "c1", accept: true}
	mgr.Register(sub)
	mgr.Subscribe("c1", "req-1")

	n, err := PublishFrame(mgr, WSFrame{RequestID: "req-1", Seq: 1, Chunk: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if len(sub.received) != 1 {
		t.Fatalf("expected subscriber to receive 1 frame, got %d", len(sub.received))
	}
}

func TestCancelSetTracksAndClears(t *testing.T) {
	var c CancelSet
	if c.Cancelled("req-1") {
		t.Fatal("expected req-1 not cancelled initially")
	}
	c.Cancel("req-1")
	if !c.Cancelled("req-1") {
		t.Fatal("expected req-1 cancelled after Cancel")
	}
	c.Clear("req-1")
	if c.Cancelled("req-1") {
		t.Fatal("expected req-1 cleared")
	}
}

func TestSequencerIsMonotonicAndStartsAtOne(t *testing.T) {
	var s Sequencer
	if got := s.Next(); got != 1 {
		t.Fatalf("expected first sequence 1, got %d", got)
	}
	if got := s.Next(); got != 2 {
		t.Fatalf("expected second sequence 2, got %d", got)
	}
}

type recordingSubscriber struct {
	id       string
	accept   bool
	received [][]byte
}

func (r *recordingSubscriber) ID() string { return r.id }
func (r *recordingSubscriber) Send(payload []byte) bool {
	if !r.accept {
		return false
	}
	r.received = append(r.received, payload)
	return true
}
func (r *recordingSubscriber) Close() {}
