package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"arvscout/internal/models"
)

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("queue is closed")

// RowQueue hands batches of valuation rows from processor workers to the
// subscribed handlers (normally the output writer) on a single goroutine, so
// handlers never run concurrently.
type RowQueue struct {
	items   chan []models.ValuationRow
	done    chan struct{}
	maxSize int
	closed  bool
	started bool
	mu      sync.RWMutex
	logger  *logrus.Logger

	// hmu guards handlers and err. It is separate from mu because a
	// blocked Push holds mu while the consumer drains.
	hmu      sync.Mutex
	handlers []func([]models.ValuationRow) error
	err      error
}

// NewRowQueue creates a queue buffering up to bufferSize batches.
func NewRowQueue(bufferSize int, logger *logrus.Logger) *RowQueue {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RowQueue{
		items:   make(chan []models.ValuationRow, bufferSize),
		done:    make(chan struct{}),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push enqueues rows, waiting for buffer space until ctx is done.
func (q *RowQueue) Push(ctx context.Context, rows []models.ValuationRow) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- rows:
		q.logger.WithField("batch_size", len(rows)).Debug("Pushed batch to queue")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds a handler called for each batch. Subscribe before Start.
func (q *RowQueue) Subscribe(handler func([]models.ValuationRow) error) {
	q.hmu.Lock()
	defer q.hmu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins delivering batches to handlers.
func (q *RowQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	go q.process()
}

func (q *RowQueue) process() {
	defer close(q.done)
	for batch := range q.items {
		q.processBatch(batch)
	}
}

func (q *RowQueue) processBatch(batch []models.ValuationRow) {
	q.hmu.Lock()
	handlers := q.handlers
	q.hmu.Unlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).Error("Handler failed to process batch")
			q.hmu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.hmu.Unlock()
		}
	}
}

// Close stops accepting batches. Batches already queued are still delivered;
// use Wait to block until they are.
func (q *RowQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.items)
	if !q.started {
		q.started = true
		go q.process()
	}
	return nil
}

// Wait blocks until a closed queue is drained and returns the first handler error.
func (q *RowQueue) Wait() error {
	<-q.done
	q.hmu.Lock()
	defer q.hmu.Unlock()
	return q.err
}
