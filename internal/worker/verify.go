package worker

import (
	"sync/atomic"
	"time"
)

// verifier checks delivery guarantees across all consumers. Each consumer
// keeps its own last-seen sequence per producer; seen is shared.
type verifier struct {
	seen       [][]atomic.Bool // [producer][seq]
	unique     atomic.Int64
	duplicates atomic.Int64
	outOfOrder atomic.Int64
	latency    atomic.Int64 // summed nanoseconds
}

func newVerifier(w Workload) *verifier {
	v := &verifier{seen: make([][]atomic.Bool, w.Producers)}
	for p := range v.seen {
		v.seen[p] = make([]atomic.Bool, w.share(p))
	}
	return v
}

func (v *verifier) record(it Item, last []int) {
	if it.Seq <= last[it.Producer] {
		v.outOfOrder.Add(1)
	}
	last[it.Producer] = it.Seq

	if v.seen[it.Producer][it.Seq].Swap(true) {
		v.duplicates.Add(1)
		return
	}
	v.unique.Add(1)
}

func (v *verifier) finish(r *Result, sent, received int64) {
	r.Sent = sent
	r.Received = received
	r.Duplicates = v.duplicates.Load()
	r.OutOfOrder = v.outOfOrder.Load()
	r.Lost = sent - v.unique.Load()

	r.Duration = r.EndedAt.Sub(r.StartedAt)
	if secs := r.Duration.Seconds(); secs > 0 {
		r.Throughput = float64(received) / secs
	}
	if received > 0 {
		r.MeanLatency = time.Duration(v.latency.Load() / received)
	}
}
