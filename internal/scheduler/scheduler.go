package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// JobRecord is one completed tick of a scheduled job.
type JobRecord struct {
	Name     string
	Bucket   time.Time
	Started  time.Time
	Finished time.Time
	Status   string
	Detail   string
}

// Job statuses recorded in history.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// JobHistory records completed ticks. Implementations append only.
type JobHistory interface {
	Append(record JobRecord)
}

// MemoryHistory is an in-process JobHistory.
type MemoryHistory struct {
	mu      sync.Mutex
	records []JobRecord
}

// NewMemoryHistory constructs an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Append stores a record.
func (h *MemoryHistory) Append(record JobRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
}

// Records returns a copy of all stored records in append order.
func (h *MemoryHistory) Records() []JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives aligned execution of pipeline jobs.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	history JobHistory
}

// New constructs a Scheduler instance. history may be nil.
func New(opts Options, history JobHistory, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		history: history,
	}
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		bucket := s.bucketStart(next)
		s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")

		s.execute(ctx, tick, bucket)

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) {
	record := JobRecord{
		Name:    s.opts.Name,
		Bucket:  bucket,
		Started: time.Now().UTC(),
		Status:  StatusOK,
	}

	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
		record.Status = StatusFailed
		record.Detail = err.Error()
	}

	record.Finished = time.Now().UTC()
	if s.history != nil {
		s.history.Append(record)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
