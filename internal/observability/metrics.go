package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reply sources.
const (
	ReplySourceGenerator = "generator"
	ReplySourceFallback  = "fallback"
)

var (
	// assessmentRecords counts stored assessments seen by the transformer,
	// by encoding. "unknown" marks malformed rows that were dropped.
	assessmentRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_records_total",
			Help: "Assessment records processed, by storage format.",
		},
		[]string{"format"},
	)

	chatReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_replies_total",
			Help: "Assistant replies persisted, by source.",
		},
		[]string{"source"},
	)

	// chatReplyDuration covers the generator call only, including the
	// time spent before a timeout triggers the fallback.
	chatReplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_reply_duration_seconds",
			Help:    "Time spent producing an assistant reply.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"source"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversation_lock_wait_seconds",
			Help:    "Time spent waiting for a per-conversation lock.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(assessmentRecords, chatReplies, chatReplyDuration, lockWait)
}

// CountAssessment records one assessment row of the given format.
func CountAssessment(format string) {
	assessmentRecords.WithLabelValues(format).Inc()
}

// ObserveReply records a persisted assistant reply and how long it took.
func ObserveReply(source string, d time.Duration) {
	chatReplies.WithLabelValues(source).Inc()
	chatReplyDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveLockWait records how long a caller waited for a conversation lock.
func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}
