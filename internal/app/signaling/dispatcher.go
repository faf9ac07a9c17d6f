package signaling

import (
	"context"
	"sync"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/gammazero/deque"
)

// dispatcher is the single dispatch queue of one session. Jobs run one at a
// time on the run goroutine, in post order. post never blocks.
type dispatcher struct {
	mu     sync.Mutex
	queue  deque.Deque[func()]
	closed bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// post enqueues fn. It reports false once the dispatcher is closed.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue.PushBack(fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the dispatch goroutine and waits for its result.
func (d *dispatcher) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !d.post(func() { res <- fn() }) {
		return domain.ErrSessionClosed
	}
	select {
	case err := <-res:
		return err
	case <-d.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if d.closed || d.queue.Len() == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue.PopFront()
			d.mu.Unlock()
			fn()
		}
	}
}

// close stops the dispatcher. Pending jobs are discarded.
func (d *dispatcher) close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.queue.Clear()
		d.mu.Unlock()
		close(d.done)
	})
}
