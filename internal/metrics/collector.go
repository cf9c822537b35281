// Package metrics provides in-memory runtime statistics for pipeline operations.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpScrape         = "scrape"
	OpCaption        = "vision_caption"
	OpExtract        = "llm_extract"
	OpTranscribe     = "stt_transcribe"
	OpResearchSubmit = "research_submit"
	OpCompletion     = "task_completion"
)

// OperationStats provides computed stats for a single operation type.
type OperationStats struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Operations    map[string]OperationStats `json:"operations"`
}

type operationMetrics struct {
	count     int64
	errors    int64
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*operationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*operationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *operationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &operationMetrics{minTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for a completed operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.count++
	m.totalTime += duration

	if duration < m.minTime {
		m.minTime = duration
	}
	if duration > m.maxTime {
		m.maxTime = duration
	}
}

// RecordError counts a failed operation without timing it.
func (c *Collector) RecordError(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).errors++
}

// Observe records the timing of an operation started at start, counting
// an error when err is non-nil.
func (c *Collector) Observe(op string, start time.Time, err error) {
	c.RecordTiming(op, time.Since(start))
	if err != nil {
		c.RecordError(op)
	}
}

// Snapshot returns a point-in-time snapshot of all metrics. Operations
// that were never recorded are absent from the map.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]OperationStats, len(c.ops))
	for op, m := range c.ops {
		if m.count == 0 && m.errors == 0 {
			continue
		}
		stats := OperationStats{
			Count:       m.count,
			Errors:      m.errors,
			TotalTimeMs: m.totalTime.Milliseconds(),
			MaxTimeMs:   m.maxTime.Milliseconds(),
		}
		if m.count > 0 {
			stats.AvgTimeMs = float64(m.totalTime.Milliseconds()) / float64(m.count)
			stats.MinTimeMs = m.minTime.Milliseconds()
		}
		ops[op] = stats
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    ops,
	}
}
