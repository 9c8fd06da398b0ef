package streaming

import "sync"

// CancelSet tracks request IDs that have been cancelled mid-stream. Any
// component forwarding chunks for a request checks Cancelled before writing
// the next one and stops as soon as it's set, regardless of transport.
type CancelSet struct {
	m sync.Map // requestID -> struct{}
}

func (c *CancelSet) Cancel(requestID string) {
	c.m.Store(requestID, struct{}{})
}

func (c *CancelSet) Cancelled(requestID string) bool {
	_, ok := c.m.Load(requestID)
	return ok
}

// Clear drops requestID's cancellation record once its stream has fully
// drained, so the set doesn't grow unbounded across the gateway's lifetime.
func (c *CancelSet) Clear(requestID string) {
	c.m.Delete(requestID)
}

// Sequencer hands out a monotonically increasing per-request sequence
// number for WSFrame.Seq, so a client can detect drops or reordering.
// One Sequencer instance is created per in-flight request.
type Sequencer struct {
	mu  sync.Mutex
	seq uint64
}

func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}
