// metrics.go: derived accuracy and agreement metrics for a task
package review

import (
	"context"
	"time"

	"github.com/clinreview/clinreview/internal/datastore"
)

// MetricsReport summarizes a task's review progress. Rates are fractions
// in [0,1]. AgreementRate is only meaningful for double-blind tasks.
type MetricsReport struct {
	TaskID           uint    `json:"task_id"`
	TotalSamples     int64   `json:"total_samples"`
	CompletedSamples int64   `json:"completed_samples"`
	FalsePositives   int64   `json:"false_positives"`
	FPRate           float64 `json:"fp_rate"`
	FPThreshold      float64 `json:"fp_threshold"`
	FPPassed         bool    `json:"fp_passed"`
	AgreementRate    float64 `json:"agreement_rate"`
	CompletionRate   float64 `json:"completion_rate"`
	TaskStatus       string  `json:"task_status"`
}

// CalculateMetrics computes false-positive, agreement and completion rates
// from the task's resolved samples, caches the rates on the task, and
// completes the task once every sample is resolved. With no completed
// samples it returns a zeroed report and leaves the task untouched. The
// computation reads a consistent snapshot and is idempotent: recomputing
// with no new feedback yields identical rates.
func (s *Service) CalculateMetrics(ctx context.Context, taskID uint) (*MetricsReport, error) {
	report := &MetricsReport{TaskID: taskID}
	taskCompleted := false

	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		report.FPThreshold = task.FPThreshold
		report.TaskStatus = task.Status

		samples, err := tx.GetSamplesByTask(ctx, task.ID)
		if err != nil {
			return err
		}
		report.TotalSamples = int64(len(samples))

		var completed, falsePositives int64
		for i := range samples {
			if samples[i].Status != datastore.SampleCompleted {
				continue
			}
			completed++
			if samples[i].FinalIsCorrect != nil && !*samples[i].FinalIsCorrect {
				falsePositives++
			}
		}
		report.CompletedSamples = completed
		report.FalsePositives = falsePositives

		if completed == 0 {
			// Nothing resolved yet: report zeroes, mutate nothing.
			report.FPPassed = true
			return nil
		}

		report.FPRate = float64(falsePositives) / float64(completed)
		report.FPPassed = report.FPRate <= task.FPThreshold
		if report.TotalSamples > 0 {
			report.CompletionRate = float64(completed) / float64(report.TotalSamples)
		}

		if task.Mode == datastore.ModeDoubleBlind {
			rate, err := s.agreementRate(ctx, tx, task.ID)
			if err != nil {
				return err
			}
			report.AgreementRate = rate
		}

		fpRate := report.FPRate
		agreementRate := report.AgreementRate
		task.FPRate = &fpRate
		task.AgreementRate = &agreementRate
		if completed == report.TotalSamples {
			task.Status = datastore.TaskCompleted
			if task.CompletedAt == nil {
				now := time.Now()
				task.CompletedAt = &now
			}
			taskCompleted = true
		}
		report.TaskStatus = task.Status
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMetricsCalculation(taskCompleted)
	}
	return report, nil
}

// agreementRate is the fraction of samples with at least two feedbacks
// whose first two verdicts (by submission sequence) match. Zero when no
// sample has been dual-reviewed yet.
func (s *Service) agreementRate(ctx context.Context, tx datastore.Interface, taskID uint) (float64, error) {
	feedbackBySample, err := tx.GetFeedbackForTask(ctx, taskID)
	if err != nil {
		return 0, err
	}

	var dualReviewed, agreed int
	for _, rows := range feedbackBySample {
		if len(rows) < 2 {
			continue
		}
		dualReviewed++
		if rows[0].IsCorrect == rows[1].IsCorrect {
			agreed++
		}
	}
	if dualReviewed == 0 {
		return 0, nil
	}
	return float64(agreed) / float64(dualReviewed), nil
}
