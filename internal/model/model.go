package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&RunSample{},
}

// Run is one completed workload execution.
type Run struct {
	gorm.Model
	Backend     string         `json:"backend" gorm:"size:32;index"`
	Producers   int            `json:"producers"`
	Consumers   int            `json:"consumers"`
	BufferSize  int            `json:"bufferSize"`
	Items       int64          `json:"items"`
	Sent        int64          `json:"sent"`
	Received    int64          `json:"received"`
	Duplicates  int64          `json:"duplicates"`
	OutOfOrder  int64          `json:"outOfOrder"`
	Lost        int64          `json:"lost"`
	Cancelled   bool           `json:"cancelled"`
	StartedAt   time.Time      `json:"startedAt" gorm:"index"`
	EndedAt     time.Time      `json:"endedAt"`
	Duration    time.Duration  `json:"duration"`
	Throughput  float64        `json:"throughput"` // items per second
	MeanLatency time.Duration  `json:"meanLatency"`
	Config      datatypes.JSON `json:"config"`
	Samples     []RunSample    `json:"samples,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (*Run) TableName() string {
	return "runs"
}

// Violations is the number of delivery guarantee breaches seen during the run.
func (r *Run) Violations() int64 {
	return r.Duplicates + r.OutOfOrder + r.Lost
}

// RunSample is a point-in-time reading of a run in progress.
type RunSample struct {
	ID       uint      `json:"id" gorm:"primarykey;autoIncrement"`
	RunID    uint      `json:"runId" gorm:"index"`
	Time     time.Time `json:"time" gorm:"column:sampled_at;index"`
	Sent     int64     `json:"sent"`
	Received int64     `json:"received"`
	QueueLen int       `json:"queueLen"`
}

func (*RunSample) TableName() string {
	return "run_samples"
}
