package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/mpmc/internal/dispatcher"
	"github.com/OCAP2/mpmc/internal/logging"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/OCAP2/mpmc/internal/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	mu    sync.Mutex
	stats worker.Stats
}

func (f *fakeStats) Stats() worker.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeStats) set(s worker.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = s
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatcher.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(e dispatcher.Event) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil, d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestSample_DispatchesReading(t *testing.T) {
	stats := &fakeStats{stats: worker.Stats{Running: true, Sent: 10, Received: 7, QueueLen: 3}}
	disp := &recordingDispatcher{}
	s := NewService(Dependencies{Workers: stats, Dispatcher: disp, Interval: time.Second})

	now := time.Unix(100, 0)
	sample, err := s.Sample(now)
	require.NoError(t, err)

	want := model.RunSample{Time: now, Sent: 10, Received: 7, QueueLen: 3}
	assert.Equal(t, want, sample)

	require.Len(t, disp.events, 1)
	assert.Equal(t, CommandSample, disp.events[0].Command)
	assert.Equal(t, want, disp.events[0].Payload)
	assert.Equal(t, now, disp.events[0].Timestamp)
}

func TestSample_ReturnsDispatchError(t *testing.T) {
	disp := &recordingDispatcher{err: errors.New("closed")}
	s := NewService(Dependencies{Workers: &fakeStats{}, Dispatcher: disp})

	_, err := s.Sample(time.Now())
	assert.EqualError(t, err, "closed")
}

func TestStart_RequiresInterval(t *testing.T) {
	s := NewService(Dependencies{Workers: &fakeStats{}, Dispatcher: &recordingDispatcher{}})
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestStart_SamplesOnlyWhileRunning(t *testing.T) {
	stats := &fakeStats{}
	disp := &recordingDispatcher{}
	s := NewService(Dependencies{Workers: stats, Dispatcher: disp, Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, disp.count(), "no samples while idle")

	stats.set(worker.Stats{Running: true, Sent: 1})
	require.Eventually(t, func() bool { return disp.count() >= 2 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	n := disp.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, disp.count(), "no samples after stop")
}

func TestStart_StopsWithContext(t *testing.T) {
	s := NewService(Dependencies{Workers: &fakeStats{}, Dispatcher: &recordingDispatcher{}, Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, time.Millisecond)
	s.Stop()
}

func TestService_WithDispatcher(t *testing.T) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)

	got := make(chan model.RunSample, 1)
	d.Register(CommandSample, func(e dispatcher.Event) (any, error) {
		got <- e.Payload.(model.RunSample)
		return nil, nil
	}, dispatcher.Async(1))

	s := NewService(Dependencies{Workers: &fakeStats{stats: worker.Stats{Running: true, Sent: 4}}, Dispatcher: d, Interval: time.Hour})
	_, err = s.Sample(time.Now())
	require.NoError(t, err)
	d.Close()

	sample := <-got
	assert.Equal(t, int64(4), sample.Sent)
}
