package graph

import (
	"sync/atomic"
	"time"
)

// Metrics tracks build and cache statistics for the stats endpoint. All
// counters are atomics, so reads never block a build.
type Metrics struct {
	builds          atomic.Int64
	lastBuildMicros atomic.Int64
	embedCacheHits  atomic.Int64
	embedComputed   atomic.Int64
	labelsCached    atomic.Int64
	labelsGenerated atomic.Int64
	labelsFallback  atomic.Int64
}

// NewMetrics creates a metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordBuild records one completed build.
func (m *Metrics) RecordBuild(elapsed time.Duration, embedHits, embedComputed, labelsCached, labelsGenerated, labelsFallback int) {
	m.builds.Add(1)
	m.lastBuildMicros.Store(elapsed.Microseconds())
	m.embedCacheHits.Add(int64(embedHits))
	m.embedComputed.Add(int64(embedComputed))
	m.labelsCached.Add(int64(labelsCached))
	m.labelsGenerated.Add(int64(labelsGenerated))
	m.labelsFallback.Add(int64(labelsFallback))
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Builds          int64   `json:"builds"`
	LastBuildMillis float64 `json:"lastBuildMillis"`
	EmbedCacheHits  int64   `json:"embedCacheHits"`
	EmbedComputed   int64   `json:"embedComputed"`
	LabelsCached    int64   `json:"labelsCached"`
	LabelsGenerated int64   `json:"labelsGenerated"`
	LabelsFallback  int64   `json:"labelsFallback"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Builds:          m.builds.Load(),
		LastBuildMillis: float64(m.lastBuildMicros.Load()) / 1000.0,
		EmbedCacheHits:  m.embedCacheHits.Load(),
		EmbedComputed:   m.embedComputed.Load(),
		LabelsCached:    m.labelsCached.Load(),
		LabelsGenerated: m.labelsGenerated.Load(),
		LabelsFallback:  m.labelsFallback.Load(),
	}
}
