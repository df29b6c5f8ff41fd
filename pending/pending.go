// Package pending correlates outgoing calls with the responses that resolve them.
//
//	caller-1 ──Register(10001)──┐
//	caller-2 ──Register(10002)──┼──→ Table
//	caller-3 ──Register(10003)──┘
//
//	reader:  ←── response(10002) → Resolve(10002) → caller-2 wakes up
//
// The waiter owns the entry: it registers the id before sending and removes it
// on every exit path (result, failure or deadline), so nothing leaks.
package pending

import (
	"sync"
	"sync/atomic"
)

// Result is what a response carries back to the waiting caller.
type Result struct {
	Payload []byte // First argument of the response frame
	Failed  bool   // The remote side reported a failure
}

// Call is a one-shot wait handle for a single outstanding call.
type Call struct {
	ID   int32
	done chan Result // Buffered so the resolver never blocks
	once sync.Once
}

func newCall(id int32) *Call {
	return &Call{ID: id, done: make(chan Result, 1)}
}

// Done returns a channel that receives the result exactly once.
func (c *Call) Done() <-chan Result {
	return c.done
}

// Resolve delivers r to the waiter. Only the first resolution has an effect;
// later ones return false.
func (c *Call) Resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.done <- r
		resolved = true
	})
	return resolved
}

// Table is a concurrent map from message id to the call waiting for it.
// It is safe for concurrent use without external locking.
type Table struct {
	calls sync.Map // map[int32]*Call
	size  atomic.Int64
}

func NewTable() *Table {
	return &Table{}
}

// Register adds a call for id. It must happen before the request is sent,
// otherwise a fast response could arrive before anyone is listening.
func (t *Table) Register(id int32) *Call {
	c := newCall(id)
	if old, loaded := t.calls.Swap(id, c); !loaded || old == nil {
		t.size.Add(1)
	}
	return c
}

// Resolve hands r to the call registered for id. It reports false when no such
// call exists (already timed out, or an unknown id) or it was already resolved.
func (t *Table) Resolve(id int32, r Result) bool {
	v, ok := t.calls.Load(id)
	if !ok {
		return false
	}
	return v.(*Call).Resolve(r)
}

// Remove drops the entry for id, if any.
func (t *Table) Remove(id int32) {
	if _, ok := t.calls.LoadAndDelete(id); ok {
		t.size.Add(-1)
	}
}

// Len returns the number of outstanding calls.
func (t *Table) Len() int {
	return int(t.size.Load())
}
