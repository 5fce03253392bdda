// Package queue orders and throttles outbound sends. One worker per
// recipient guarantees FIFO delivery to that recipient while a slow or
// failing recipient never blocks the others.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
)

var (
	ErrClosed      = errors.New("queue: closed")
	ErrNoRecipient = errors.New("queue: missing recipient")
	ErrEmptyBody   = errors.New("queue: empty body")
)

const (
	readyPollInterval = 100 * time.Millisecond
	workerIdleAfter   = 5 * time.Minute
)

// SendFunc delivers one message over the transport.
type SendFunc func(ctx context.Context, recipientID, body string) error

type Queue struct {
	send    SendFunc
	ready   func() bool
	depth   int
	retries int
	backoff time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type worker struct {
	recipient string
	ch        chan bus.OutboundMessage
}

// New builds a queue delivering through send, gated on ready. Sends
// submitted while the session is not ready wait in their recipient's queue
// and flush in order once readiness returns.
func New(cfg *config.Config, send SendFunc, ready func() bool) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		send:    send,
		ready:   ready,
		depth:   cfg.QueueDepth,
		retries: cfg.SendRetries,
		backoff: cfg.SendBackoff,
		workers: make(map[string]*worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue submits a message for ordered delivery. Never blocks: when the
// recipient's queue is full the oldest queued message is dropped with a
// log, bounding memory for a recipient who never reconnects.
func (q *Queue) Enqueue(msg bus.OutboundMessage) error {
	if msg.RecipientID == "" {
		return ErrNoRecipient
	}
	if msg.Body == "" {
		return ErrEmptyBody
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	w, ok := q.workers[msg.RecipientID]
	if !ok {
		w = &worker{
			recipient: msg.RecipientID,
			ch:        make(chan bus.OutboundMessage, q.depth),
		}
		q.workers[msg.RecipientID] = w
		q.wg.Add(1)
		go q.run(w)
	}

	for {
		select {
		case w.ch <- msg:
			return nil
		default:
			select {
			case dropped := <-w.ch:
				logger.WarnCF("queue", "queue full, dropping oldest", map[string]interface{}{
					"recipient":  w.recipient,
					"dropped_id": dropped.ID,
				})
			default:
			}
		}
	}
}

// Close stops all workers. Messages still queued are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) run(w *worker) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-w.ch:
			q.deliver(msg)
		case <-time.After(workerIdleAfter):
			// Retire idle workers so the map does not grow with every
			// recipient ever seen. Racing enqueues hold q.mu, so the
			// emptiness check is exact.
			q.mu.Lock()
			if len(w.ch) == 0 {
				delete(q.workers, w.recipient)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
		}
	}
}

// deliver sends one message, waiting for readiness first and retrying on
// failure with linear backoff. Permanent failures are logged and dropped;
// there is no channel to tell the original sender.
func (q *Queue) deliver(msg bus.OutboundMessage) {
	if !q.awaitReady() {
		return
	}

	for attempt := 0; attempt <= q.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * q.backoff):
			}
			if !q.awaitReady() {
				return
			}
		}

		err := q.send(q.ctx, msg.RecipientID, msg.Body)
		if err == nil {
			logger.DebugCF("queue", "message sent", map[string]interface{}{
				"recipient": msg.RecipientID,
				"id":        msg.ID,
			})
			return
		}
		logger.WarnCF("queue", "send failed", map[string]interface{}{
			"recipient": msg.RecipientID,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})
	}

	logger.ErrorCF("queue", "dropping message after exhausting retries", map[string]interface{}{
		"recipient": msg.RecipientID,
		"id":        msg.ID,
	})
}

// awaitReady blocks until the session accepts sends. Returns false on
// shutdown.
func (q *Queue) awaitReady() bool {
	for {
		if q.ready() {
			return true
		}
		select {
		case <-q.ctx.Done():
			return false
		case <-time.After(readyPollInterval):
		}
	}
}
