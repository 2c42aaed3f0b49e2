package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/mpmc/internal/channel"
	"github.com/OCAP2/mpmc/internal/logging"
	"github.com/sourcegraph/conc"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("workload already running")

// Workload describes one run of producers and consumers over a channel.
type Workload struct {
	Backend    channel.Kind `json:"backend"`
	BufferSize int          `json:"bufferSize"`
	Producers  int          `json:"producers"`
	Consumers  int          `json:"consumers"`
	Items      int          `json:"items"` // total across all producers
}

// Validate reports the first invalid setting.
func (w Workload) Validate() error {
	switch {
	case w.Producers < 1:
		return fmt.Errorf("producers must be at least 1, got %d", w.Producers)
	case w.Consumers < 1:
		return fmt.Errorf("consumers must be at least 1, got %d", w.Consumers)
	case w.Items < 0:
		return fmt.Errorf("items must not be negative, got %d", w.Items)
	case w.BufferSize < 0:
		return fmt.Errorf("buffer size must not be negative, got %d", w.BufferSize)
	}
	return nil
}

// share returns how many items producer p sends.
func (w Workload) share(p int) int {
	n := w.Items / w.Producers
	if p < w.Items%w.Producers {
		n++
	}
	return n
}

// Item is what producers put on the channel.
type Item struct {
	Producer int
	Seq      int
	SentAt   time.Time
}

// Stats is a live reading of a run in progress.
type Stats struct {
	Running  bool
	Sent     int64
	Received int64
	QueueLen int
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
}

// Manager runs workloads and exposes their progress.
type Manager struct {
	deps Dependencies

	sent     atomic.Int64
	received atomic.Int64

	mu sync.Mutex
	rx channel.Receiver[Item] // nil between runs
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	return &Manager{deps: deps}
}

// Stats returns the progress of the current or last run.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Running:  m.rx != nil,
		Sent:     m.sent.Load(),
		Received: m.received.Load(),
	}
	if m.rx != nil {
		s.QueueLen = m.rx.Len()
	}
	return s
}

// Run executes the workload and blocks until every consumer has seen the
// channel close. Cancelling ctx stops the producers early; items already sent
// are still consumed and checked.
func (m *Manager) Run(ctx context.Context, w Workload) (Result, error) {
	if err := w.Validate(); err != nil {
		return Result{}, err
	}

	tx, rx, err := channel.New[Item](w.Backend, w.BufferSize)
	if err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	if m.rx != nil {
		m.mu.Unlock()
		tx.Close()
		return Result{}, ErrBusy
	}
	m.rx = rx
	m.sent.Store(0)
	m.received.Store(0)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.rx.Close()
		m.rx = nil
		m.mu.Unlock()
	}()

	logger := m.logger()
	logger.InfoContext(ctx, "Starting workload",
		"backend", w.Backend,
		"producers", w.Producers,
		"consumers", w.Consumers,
		"items", w.Items)

	v := newVerifier(w)
	res := Result{Workload: w, StartedAt: time.Now()}

	var wg conc.WaitGroup
	for c := 0; c < w.Consumers; c++ {
		crx := rx.Clone()
		wg.Go(func() {
			defer crx.Close()
			m.consume(crx, v)
		})
	}
	for p := 0; p < w.Producers; p++ {
		ptx := tx.Clone()
		wg.Go(func() {
			defer ptx.Close()
			m.produce(ctx, ptx, p, w.share(p))
		})
	}
	// producers hold the only remaining senders
	tx.Close()

	if r := wg.WaitAndRecover(); r != nil {
		return Result{}, fmt.Errorf("worker panicked: %w", r.AsError())
	}

	res.EndedAt = time.Now()
	res.Cancelled = ctx.Err() != nil
	v.finish(&res, m.sent.Load(), m.received.Load())

	logger.InfoContext(ctx, "Workload finished",
		"backend", w.Backend,
		"received", res.Received,
		"duration", res.Duration,
		"throughput", res.Throughput,
		"violations", res.Violations())

	return res, nil
}

func (m *Manager) produce(ctx context.Context, tx channel.Sender[Item], producer, n int) {
	done := ctx.Done()
	for seq := 0; seq < n; seq++ {
		select {
		case <-done:
			return
		default:
		}
		tx.Send(Item{Producer: producer, Seq: seq, SentAt: time.Now()})
		m.sent.Add(1)
	}
}

func (m *Manager) consume(rx channel.Receiver[Item], v *verifier) {
	last := make([]int, len(v.seen))
	for i := range last {
		last[i] = -1
	}

	var latency int64
	for {
		it, ok := rx.Recv()
		if !ok {
			break
		}
		latency += int64(time.Since(it.SentAt))
		v.record(it, last)
		m.received.Add(1)
	}
	v.latency.Add(latency)
}

func (m *Manager) logger() *slog.Logger {
	if m.deps.LogManager == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.deps.LogManager.Logger()
}
