package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event carries one engine occurrence to its subscribers.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc consumes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the subscriber async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered subscriber block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around the subscriber.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher fans events out to the subscribers of each event type.
type Dispatcher struct {
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	subs    map[string][]HandlerFunc
	buffers map[string]chan Event
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		subs:    make(map[string][]HandlerFunc),
		buffers: make(map[string]chan Event),
		logger:  logger,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("subscriber", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Subscribe adds a handler for the given event type with optional configuration.
func (d *Dispatcher) Subscribe(eventType string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	typAttr := attribute.String("event", eventType)

	inner := h
	handler := HandlerFunc(func(e Event) error {
		err := inner(e)
		d.processed.Add(context.Background(), 1, metric.WithAttributes(typAttr))
		return err
	})

	if cfg.bufferSize > 0 {
		d.mu.RLock()
		name := fmt.Sprintf("%s[%d]", eventType, len(d.subs[eventType]))
		d.mu.RUnlock()
		handler = d.withBuffer(name, typAttr, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(eventType, handler)
	}

	d.mu.Lock()
	d.subs[eventType] = append(d.subs[eventType], handler)
	d.mu.Unlock()
}

// Publish delivers the payload to every subscriber of eventType.
// Delivery errors and queue overflows are logged; Publish never fails.
func (d *Dispatcher) Publish(eventType string, payload any) {
	e := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}

	d.mu.RLock()
	subs := d.subs[eventType]
	d.mu.RUnlock()

	for _, h := range subs {
		if err := h(e); err != nil {
			d.logger.Error("event delivery failed", "event", eventType, "error", err)
		}
	}
}

// HasSubscribers returns true if at least one subscriber is registered for the event type.
func (d *Dispatcher) HasSubscribers(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[eventType]) > 0
}

func (d *Dispatcher) withBuffer(name string, typAttr attribute.KeyValue, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("event handler failed", "event", e.Type, "error", err)
			}
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(typAttr))
			return fmt.Errorf("queue full: %s", name)
		}
	}
}

func (d *Dispatcher) withLogging(eventType string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "event", eventType)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "event", eventType, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "event", eventType, "duration", time.Since(start))
		}

		return err
	}
}
