package xspine

import (
	"sync/atomic"
	"time"
)

// topicMetrics uses lock-free atomics so dispatch never serializes on a
// metrics mutex.
type topicMetrics struct {
	published    atomic.Uint64
	processed    atomic.Uint64
	failed       atomic.Uint64
	duplicated   atomic.Uint64
	processingNs atomic.Int64
	lastEventNs  atomic.Int64
}

// TopicMetrics is the per-topic counter snapshot returned by Bus.Metrics.
type TopicMetrics struct {
	Published           uint64
	Processed           uint64
	Failed              uint64
	Duplicated          uint64
	AvgProcessingTimeMs float64
	QueueDepth          int
	LastEventTime       time.Time
}

func (m *topicMetrics) snapshot(depth int) TopicMetrics {
	s := TopicMetrics{
		Published:  m.published.Load(),
		Processed:  m.processed.Load(),
		Failed:     m.failed.Load(),
		Duplicated: m.duplicated.Load(),
		QueueDepth: depth,
	}
	if s.Processed > 0 {
		s.AvgProcessingTimeMs = float64(m.processingNs.Load()) / float64(s.Processed) / 1e6
	}
	if ns := m.lastEventNs.Load(); ns > 0 {
		s.LastEventTime = time.Unix(0, ns)
	}
	return s
}

func (m *topicMetrics) recordDispatch(d time.Duration, at time.Time) {
	m.processed.Add(1)
	m.processingNs.Add(d.Nanoseconds())
	m.lastEventNs.Store(at.UnixNano())
}
