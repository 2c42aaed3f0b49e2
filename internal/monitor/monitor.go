package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/mpmc/internal/dispatcher"
	"github.com/OCAP2/mpmc/internal/logging"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/OCAP2/mpmc/internal/worker"
)

// CommandSample is dispatched with a model.RunSample payload on every tick.
const CommandSample = ":SAMPLE:"

// StatsSource reports live workload progress.
type StatsSource interface {
	Stats() worker.Stats
}

// Dispatcher routes sample events.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Workers    StatsSource
	Dispatcher Dispatcher
	LogManager *logging.SlogManager
	Interval   time.Duration
}

// Service periodically samples a running workload.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// IsRunning returns whether the sampler is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample reads the workload once and dispatches the reading.
func (s *Service) Sample(now time.Time) (model.RunSample, error) {
	stats := s.deps.Workers.Stats()
	sample := model.RunSample{
		Time:     now,
		Sent:     stats.Sent,
		Received: stats.Received,
		QueueLen: stats.QueueLen,
	}
	_, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   CommandSample,
		Payload:   sample,
		Timestamp: now,
	})
	return sample, err
}

// Start starts the sampler goroutine. It stops when ctx is done or Stop is
// called.
func (s *Service) Start(ctx context.Context) error {
	if s.deps.Interval <= 0 {
		return errors.New("sample interval must be positive")
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			if s.done == done {
				s.isRunning = false
			}
			s.mu.Unlock()
		}()

		logger := s.logger()
		logger.Debug("Starting sampler", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				logger.Debug("Sampler stopped")
				return
			case <-ctx.Done():
				logger.Debug("Sampler context done", "reason", ctx.Err())
				return
			case now := <-ticker.C:
				if !s.deps.Workers.Stats().Running {
					continue
				}
				if _, err := s.Sample(now); err != nil {
					logger.Error("Error dispatching sample", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the sampler and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.deps.LogManager.Logger()
}
