package notify

import (
	"context"
	"sync"
	"time"

	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
)

// Dispatcher queues messages and delivers them on background workers, so
// a slow transport never holds up the request that issued the code.
type Dispatcher struct {
	next    twofactor.Sender
	queue   chan twofactor.Message
	timeout time.Duration
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(next twofactor.Sender, buffer, workers int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan twofactor.Message, buffer),
		timeout: timeout,
	}
	d.workers.Add(workers)
	for range workers {
		go d.run()
	}
	return d
}

// Send enqueues msg. It fails only when the queue is full or closed.
func (d *Dispatcher) Send(_ context.Context, msg twofactor.Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherDone
	}
	d.pending.Add(1)
	select {
	case d.queue <- msg:
		return nil
	default:
		d.pending.Done()
		logger.WarnWithUser(msg.UserID.String(), "notify_queue_full", map[string]interface{}{
			"method":  string(msg.Method),
			"dropped": true,
		})
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.workers.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg twofactor.Message) {
	defer d.pending.Done()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.next.Send(ctx, msg); err != nil {
		logger.ErrorWithUser(msg.UserID.String(), "notify_delivery_failed", err, map[string]interface{}{
			"method":      string(msg.Method),
			"destination": logger.MaskDestination(msg.Destination),
		})
	}
}

// Wait blocks until every queued message has been attempted.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting messages and waits for the workers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.workers.Wait()
}
