// Package analytics records one event per generation batch. Events are
// folded into a process-local Aggregator and, when a broker is configured,
// published asynchronously so the upload path never waits on Kafka.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/resilience"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// CollectorOptions tunes buffering and delivery. Zero values take defaults.
type CollectorOptions struct {
	BufferSize     int
	PublishTimeout time.Duration
	Retry          resilience.RetryConfig
	Breaker        *resilience.CircuitBreaker
	// OnPublish, when set, is called with "ok", "failed" or "dropped".
	OnPublish func(status string)
}

type Collector struct {
	publisher Publisher
	agg       *Aggregator
	opts      CollectorOptions
	eventCh   chan generation.BatchEvent
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewCollector builds a collector. A nil publisher keeps events local.
func NewCollector(publisher Publisher, agg *Aggregator, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("batch-events", resilience.CircuitBreakerConfig{})
	}
	if agg == nil {
		agg = NewAggregator()
	}
	return &Collector{
		publisher: publisher,
		agg:       agg,
		opts:      opts,
		eventCh:   make(chan generation.BatchEvent, opts.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Aggregator() *Aggregator { return c.agg }

// Start launches the publishing loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"publishing", c.publisher != nil,
	)
}

// Track records event. It never blocks: when the buffer is full the event is
// counted locally but not published.
func (c *Collector) Track(event generation.BatchEvent) {
	c.agg.Record(event)
	if c.publisher == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("batch event dropped (buffer full)", "batch_id", event.BatchID)
		c.report("dropped")
	}
}

// Close stops accepting events and waits for buffered ones to be sent.
// Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event generation.BatchEvent) {
	err := resilience.Retry(ctx, "publish-batch-event", c.opts.Retry, func() error {
		return c.opts.Breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, c.opts.PublishTimeout, "kafka-publish", func(ctx context.Context) error {
				return c.publisher.Publish(ctx, kafka.Event{Key: event.BatchID, Value: event})
			})
		})
	})
	if err != nil {
		c.logger.Error("failed to publish batch event", "batch_id", event.BatchID, "error", err)
		c.report("failed")
		return
	}
	c.report("ok")
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PublishTimeout)
	defer cancel()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}

func (c *Collector) report(status string) {
	if c.opts.OnPublish != nil {
		c.opts.OnPublish(status)
	}
}
