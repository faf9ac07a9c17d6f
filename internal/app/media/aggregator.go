package media

import (
	"sync"
	"sync/atomic"
)

// Aggregator accumulates remote tracks in arrival order and republishes the
// composite Stream after every change. Duplicates are kept: the transport is
// the source of truth.
type Aggregator struct {
	mu      sync.Mutex
	set     []*Track
	current atomic.Pointer[Stream]
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.current.Store(Rebuild(nil))
	return a
}

// Append adds t to the set and returns the rebuilt stream.
func (a *Aggregator) Append(t *Track) *Stream {
	a.mu.Lock()
	a.set = append(a.set, t)
	st := Rebuild(a.set)
	a.current.Store(st)
	a.mu.Unlock()
	return st
}

// Current returns the latest stream; never nil.
func (a *Aggregator) Current() *Stream {
	return a.current.Load()
}

// Release forgets the track set. Track loops are stopped by their owner.
func (a *Aggregator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set = nil
	a.current.Store(Rebuild(nil))
}
