package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/mpmc/pkg/mpmc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event represents a command routed through the dispatcher.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	workers int
	logged  bool
}

// Async makes the handler run on the given number of worker goroutines
// fed from an unbounded queue. Dispatch returns as soon as the event is queued.
func Async(workers int) Option {
	return func(c *config) {
		if workers < 1 {
			workers = 1
		}
		c.workers = workers
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	queued    metric.Int64Counter

	// mu guards handlers, queues and closed; async handlers send under the
	// read lock so Close never releases a sender that is in use.
	mu      sync.RWMutex
	queues  map[string]*mpmc.Sender[Event]
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*mpmc.Sender[Event]),
		logger:   logger,
	}

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
			for cmd, q := range d.queues {
				o.ObserveInt64(d.queueSize, int64(q.Len()),
					metric.WithAttributes(attribute.String("command", cmd)))
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

	d.queued, err = m.Int64Counter(
		"dispatcher.events.queued",
		metric.WithDescription("Total events queued for async handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queued counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
// Registering a command again replaces its handler; an async handler's old
// workers drain what was already queued and exit. Registering an async
// handler after Close panics with ErrClosed.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	if cfg.workers > 0 {
		handler = d.withQueue(command, cfg.workers, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// QueueLen returns the number of events waiting for the command's workers.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return q.Len()
	}
	return 0
}

// Close stops accepting events, lets the workers drain their queues and
// waits for them to finish. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			q.Close()
		}
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) withQueue(command string, workers int, h HandlerFunc) HandlerFunc {
	tx, rx := mpmc.New[Event]()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		tx.Close()
		rx.Close()
		panic(fmt.Errorf("%w: cannot register %s", ErrClosed, command))
	}
	if old, ok := d.queues[command]; ok {
		old.Close()
	}
	d.queues[command] = tx
	d.workers.Add(workers)
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	for i := 0; i < workers; i++ {
		wrx := rx.Clone()
		go func() {
			defer d.workers.Done()
			defer wrx.Close()
			for e := range wrx.All() {
				if _, err := h(e); err != nil {
					d.logger.Error("async handler failed", "command", command, "error", err)
				}
				d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			}
		}()
	}
	rx.Close()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed || d.queues[command] != tx {
			return nil, fmt.Errorf("%w: %s", ErrClosed, command)
		}
		tx.Send(e)
		d.queued.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		return "queued", nil
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
