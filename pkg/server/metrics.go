package server

import (
	"sync"
	"time"
)

// MetricsCollector tracks orchestration activity for the health endpoint.
type MetricsCollector struct {
	mu          sync.RWMutex
	uniqueRepos map[string]bool
	lastRun     time.Time
	totalRuns   int64
	failedRuns  int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		uniqueRepos: make(map[string]bool),
	}
}

// RecordRun records one completed orchestration run.
func (m *MetricsCollector) RecordRun(repo string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if repo != "" {
		m.uniqueRepos[repo] = true
	}
	m.lastRun = time.Now()
	m.totalRuns++
	if failed {
		m.failedRuns++
	}
}

// Stats represents collected metrics.
type Stats struct {
	LastRun    time.Time
	Repos      int
	TotalRuns  int64
	FailedRuns int64
}

// GetStats returns the current statistics.
func (m *MetricsCollector) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Repos:      len(m.uniqueRepos),
		LastRun:    m.lastRun,
		TotalRuns:  m.totalRuns,
		FailedRuns: m.failedRuns,
	}
}
