package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReviewMetrics contains Prometheus metrics for the review workflow
type ReviewMetrics struct {
	tasksCreatedTotal      *prometheus.CounterVec
	samplesGeneratedTotal  *prometheus.CounterVec
	samplingDuration       *prometheus.HistogramVec
	feedbackSubmittedTotal *prometheus.CounterVec
	sampleTransitionsTotal *prometheus.CounterVec
	arbitrationsTotal      prometheus.Counter
	conflictsResolvedTotal prometheus.Counter
	metricsCalculatedTotal prometheus.Counter
	tasksCompletedTotal    prometheus.Counter
}

// NewReviewMetrics creates and registers review workflow metric collectors.
func NewReviewMetrics(registry *prometheus.Registry) (*ReviewMetrics, error) {
	m := &ReviewMetrics{
		tasksCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinreview_tasks_created_total",
				Help: "Total number of review tasks created by review mode",
			},
			[]string{"mode"},
		),
		samplesGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinreview_samples_generated_total",
				Help: "Total number of review samples generated by sampling strategy",
			},
			[]string{"strategy"},
		),
		samplingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinreview_sampling_duration_seconds",
				Help:    "Sample generation duration in seconds by strategy",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		feedbackSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinreview_feedback_submitted_total",
				Help: "Total number of feedback submissions by verdict",
			},
			[]string{"verdict"},
		),
		sampleTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinreview_sample_transitions_total",
				Help: "Total number of sample state transitions by target state",
			},
			[]string{"to_state"},
		),
		arbitrationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinreview_arbitrations_total",
				Help: "Total number of samples escalated to arbitration",
			},
		),
		conflictsResolvedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinreview_conflicts_resolved_total",
				Help: "Total number of arbitration resolutions",
			},
		),
		metricsCalculatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinreview_metrics_calculations_total",
				Help: "Total number of task metrics aggregations",
			},
		),
		tasksCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinreview_tasks_completed_total",
				Help: "Total number of review tasks that reached completion",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.tasksCreatedTotal,
		m.samplesGeneratedTotal,
		m.samplingDuration,
		m.feedbackSubmittedTotal,
		m.sampleTransitionsTotal,
		m.arbitrationsTotal,
		m.conflictsResolvedTotal,
		m.metricsCalculatedTotal,
		m.tasksCompletedTotal,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordTaskCreated increments the task creation counter.
func (m *ReviewMetrics) RecordTaskCreated(mode string) {
	m.tasksCreatedTotal.WithLabelValues(mode).Inc()
}

// RecordSamplesGenerated records a completed sample generation run.
func (m *ReviewMetrics) RecordSamplesGenerated(strategy string, count int, duration time.Duration) {
	m.samplesGeneratedTotal.WithLabelValues(strategy).Add(float64(count))
	m.samplingDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordFeedback records one feedback submission.
func (m *ReviewMetrics) RecordFeedback(isCorrect bool) {
	verdict := "correct"
	if !isCorrect {
		verdict = "incorrect"
	}
	m.feedbackSubmittedTotal.WithLabelValues(verdict).Inc()
}

// RecordSampleTransition records a sample state transition.
func (m *ReviewMetrics) RecordSampleTransition(toState string) {
	m.sampleTransitionsTotal.WithLabelValues(toState).Inc()
	if toState == "in_arbitration" {
		m.arbitrationsTotal.Inc()
	}
}

// RecordConflictResolved records one arbitration resolution.
func (m *ReviewMetrics) RecordConflictResolved() {
	m.conflictsResolvedTotal.Inc()
}

// RecordMetricsCalculation records one metrics aggregation run and whether
// it completed the task.
func (m *ReviewMetrics) RecordMetricsCalculation(taskCompleted bool) {
	m.metricsCalculatedTotal.Inc()
	if taskCompleted {
		m.tasksCompletedTotal.Inc()
	}
}
