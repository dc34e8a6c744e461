// Package async provides a worker pool that publishes day extracted events
// off the extraction path.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/tracks/pkg/eventstream"
	"github.com/papercomputeco/tracks/pkg/logger"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	defaultTimeout           = 10 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the queue is at
// capacity.
var ErrQueueFull = errors.New("publish queue full, event dropped")

// ErrClosed is returned for events published after Close.
var ErrClosed = errors.New("publisher pool closed")

// Config is the configuration options for the pool.
type Config struct {
	// Publisher receives every queued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered event channel (defaults to 256).
	QueueSize uint

	// Timeout bounds each delivery to Publisher. Defaults to 10 seconds.
	Timeout time.Duration

	Logger *slog.Logger
}

// Pool is an eventstream.Publisher that enqueues events for background
// delivery.
type Pool struct {
	config *Config
	queue  chan *eventstream.DayExtractedEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ eventstream.Publisher = (*Pool)(nil)

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	p := &Pool{
		config: c,
		queue:  make(chan *eventstream.DayExtractedEvent, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// PublishDayExtracted enqueues event without blocking. It returns
// ErrQueueFull when the event had to be dropped.
func (p *Pool) PublishDayExtracted(_ context.Context, event *eventstream.DayExtractedEvent) error {
	if event == nil {
		return eventstream.ErrNilDayEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- event:
		p.logger.Debug("day event queued", "day", event.Day)
		return nil
	default:
		p.logger.Error("day event not queued, queue full, event dropped", "day", event.Day)
		return ErrQueueFull
	}
}

// Close stops accepting events, waits for queued events to drain and then
// closes the underlying publisher.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

// worker is the inner worker loop that continuously pulls events off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("publish worker started", "worker_id", id)

	for event := range p.queue {
		p.deliver(event)
	}

	p.logger.Debug("publish worker stopped", "worker_id", id)
}

func (p *Pool) deliver(event *eventstream.DayExtractedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	if err := p.config.Publisher.PublishDayExtracted(ctx, event); err != nil {
		p.logger.Error("async day event publish failed", "day", event.Day, "error", err)
	}
}
