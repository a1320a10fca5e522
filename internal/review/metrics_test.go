// metrics_test.go: metrics aggregation behavior
package review

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinreview/clinreview/internal/datastore"
)

// reviewAll submits a single-mode verdict for every sample; incorrectCount
// of them are marked incorrect.
func reviewAll(t *testing.T, svc *Service, task *datastore.ReviewTask, samples []datastore.ReviewSample, reviewer string, incorrectCount int) {
	t.Helper()
	ctx := context.Background()
	for i := range samples {
		params := &SubmitFeedbackParams{
			TaskID:          task.ID,
			SampleID:        samples[i].ID,
			ReviewerRef:     reviewer,
			IsCorrect:       i >= incorrectCount,
			ConfidenceLevel: datastore.ConfidenceHigh,
		}
		if !params.IsCorrect {
			params.CorrectedCategory = fmt.Sprintf("corrected-%d", i)
		}
		_, err := svc.SubmitFeedback(ctx, params)
		require.NoError(t, err)
	}
}

func TestCalculateMetricsFalsePositiveRate(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	task, samples := setupTask(t, svc, ds, datastore.ModeSingle, 10)
	seedReviewers(t, ds, "alice")
	_, err := svc.AssignReviewers(ctx, task.ID, []string{"alice"}, "")
	require.NoError(t, err)

	// 10 completed samples, 3 incorrect, threshold 0.20
	reviewAll(t, svc, task, samples, "alice", 3)

	report, err := svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, report.FPRate, 1e-9)
	assert.False(t, report.FPPassed)
	assert.InDelta(t, 1.0, report.CompletionRate, 1e-9)
	assert.Equal(t, int64(10), report.CompletedSamples)
	assert.Equal(t, datastore.TaskCompleted, report.TaskStatus)

	// Cached rates and completion stamp land on the task.
	updated, err := ds.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.FPRate)
	assert.InDelta(t, 0.3, *updated.FPRate, 1e-9)
	assert.NotNil(t, updated.CompletedAt)
	assert.Equal(t, datastore.TaskCompleted, updated.Status)
}

func TestCalculateMetricsNoCompletedSamples(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	task, _ := setupTask(t, svc, ds, datastore.ModeSingle, 5)

	report, err := svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)

	assert.Zero(t, report.FPRate)
	assert.Zero(t, report.CompletionRate)
	assert.Zero(t, report.CompletedSamples)

	// The task is untouched: no cached rates, still in progress.
	updated, err := ds.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.FPRate)
	assert.Equal(t, datastore.TaskInProgress, updated.Status)
}

func TestCalculateMetricsIdempotent(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	task, samples := setupTask(t, svc, ds, datastore.ModeSingle, 6)
	seedReviewers(t, ds, "alice")
	_, err := svc.AssignReviewers(ctx, task.ID, []string{"alice"}, "")
	require.NoError(t, err)
	reviewAll(t, svc, task, samples, "alice", 2)

	first, err := svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)
	second, err := svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)

	assert.InDelta(t, first.FPRate, second.FPRate, 1e-12)
	assert.InDelta(t, first.AgreementRate, second.AgreementRate, 1e-12)
	assert.Equal(t, first.CompletedSamples, second.CompletedSamples)
}

func TestCalculateMetricsAgreementRate(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	task, samples := setupTask(t, svc, ds, datastore.ModeDoubleBlind, 4)
	seedReviewers(t, ds, "alice", "bob", "carol")
	_, err := svc.AssignReviewers(ctx, task.ID, []string{"alice", "bob"}, "carol")
	require.NoError(t, err)

	// Samples 0-2: both agree correct. Sample 3: disagreement.
	for i := range 3 {
		for _, ref := range []string{"alice", "bob"} {
			_, err := svc.SubmitFeedback(ctx, &SubmitFeedbackParams{
				TaskID: task.ID, SampleID: samples[i].ID, ReviewerRef: ref,
				IsCorrect: true, ConfidenceLevel: datastore.ConfidenceHigh,
			})
			require.NoError(t, err)
		}
	}
	_, err = svc.SubmitFeedback(ctx, &SubmitFeedbackParams{
		TaskID: task.ID, SampleID: samples[3].ID, ReviewerRef: "alice",
		IsCorrect: true, ConfidenceLevel: datastore.ConfidenceHigh,
	})
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, &SubmitFeedbackParams{
		TaskID: task.ID, SampleID: samples[3].ID, ReviewerRef: "bob",
		IsCorrect: false, CorrectedCategory: "other",
		ConfidenceLevel: datastore.ConfidenceHigh,
	})
	require.NoError(t, err)

	report, err := svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)

	// 4 dual-reviewed samples, 3 in agreement.
	assert.InDelta(t, 0.75, report.AgreementRate, 1e-9)
	// The arbitration sample is not completed, so the task stays open.
	assert.Equal(t, int64(3), report.CompletedSamples)
	assert.Equal(t, datastore.TaskInProgress, report.TaskStatus)

	// Resolving the conflict completes the task on the next aggregation.
	_, err = svc.ResolveConflict(ctx, &ResolveConflictParams{
		TaskID: task.ID, SampleID: samples[3].ID, ArbitratorRef: "carol",
		IsCorrect: true,
	})
	require.NoError(t, err)

	report, err = svc.CalculateMetrics(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.CompletedSamples)
	assert.Equal(t, datastore.TaskCompleted, report.TaskStatus)
	// The arbitrator's third row never displaces the first two verdicts.
	assert.InDelta(t, 0.75, report.AgreementRate, 1e-9)
}
