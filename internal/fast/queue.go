package fast

import (
	"context"
	"sync"
)

// pendingSend is one queued write
type pendingSend struct {
	data    []byte
	confirm string // empty when no confirmation is expected
	query   bool   // a SendQuery caller is blocked on the confirmation
	logMsg  string // readable form of data for logs
}

// sendQueue is an unbounded FIFO of pending writes
type sendQueue struct {
	mu     sync.Mutex
	items  []pendingSend
	signal chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{signal: make(chan struct{}, 1)}
}

func (q *sendQueue) push(item pendingSend) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is done
func (q *sendQueue) pop(ctx context.Context) (pendingSend, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = pendingSend{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return pendingSend{}, ctx.Err()
		}
	}
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
