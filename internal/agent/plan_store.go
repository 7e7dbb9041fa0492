package agent

import "sync"

// PlanStore holds the pending tool calls for one session in FIFO order.
// The executor consumes exactly one entry per pass; a plan revision
// replaces the whole queue.
type PlanStore struct {
	mu    sync.Mutex
	calls []PlannedCall
}

// NewPlanStore creates an empty plan.
func NewPlanStore() *PlanStore {
	return &PlanStore{}
}

// Replace swaps in a new ordered call sequence, dropping whatever was
// pending.
func (p *PlanStore) Replace(calls []PlannedCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls[:0:0], calls...)
}

// Pop removes and returns the head of the plan. ok is false on an empty
// plan; the entries behind the head are untouched either way.
func (p *PlanStore) Pop() (PlannedCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.calls) == 0 {
		return PlannedCall{}, false
	}
	head := p.calls[0]
	p.calls = p.calls[1:]
	return head, true
}

// Len returns the number of pending calls.
func (p *PlanStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Snapshot returns a copy of the pending calls in order.
func (p *PlanStore) Snapshot() []PlannedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlannedCall(nil), p.calls...)
}

// Clear drops all pending calls.
func (p *PlanStore) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
