package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OCAP2/mpmc/internal/model"
	"gorm.io/datatypes"
)

// Result describes a finished run.
type Result struct {
	Workload
	Sent        int64
	Received    int64
	Duplicates  int64
	OutOfOrder  int64
	Lost        int64
	Cancelled   bool
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Throughput  float64 // received items per second
	MeanLatency time.Duration
}

// Violations is the number of ordering, duplication and loss errors.
func (r Result) Violations() int64 {
	return r.Duplicates + r.OutOfOrder + r.Lost
}

// Model converts the result into a database record. The workload is kept
// as JSON so runs stay comparable when new settings are added.
func (r Result) Model() (*model.Run, error) {
	cfg, err := json.Marshal(r.Workload)
	if err != nil {
		return nil, fmt.Errorf("encoding workload: %w", err)
	}
	return &model.Run{
		Backend:     string(r.Backend),
		Producers:   r.Producers,
		Consumers:   r.Consumers,
		BufferSize:  r.BufferSize,
		Items:       int64(r.Items),
		Sent:        r.Sent,
		Received:    r.Received,
		Duplicates:  r.Duplicates,
		OutOfOrder:  r.OutOfOrder,
		Lost:        r.Lost,
		Cancelled:   r.Cancelled,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Duration:    r.Duration,
		Throughput:  r.Throughput,
		MeanLatency: r.MeanLatency,
		Config:      datatypes.JSON(cfg),
	}, nil
}
