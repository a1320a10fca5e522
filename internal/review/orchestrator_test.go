// orchestrator_test.go: task creation and sample generation
package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
)

func TestCreateTaskPersistsPendingTask(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	seedBatch(t, ds, "batch-1", 20, []float64{0.9, 0.4}, []string{"pneumonia"})

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name:        "weekly audit",
		BatchRef:    "batch-1",
		SampleSize:  10,
		Mode:        datastore.ModeDoubleBlind,
		FPThreshold: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, datastore.TaskPending, task.Status)
	assert.Equal(t, 10, task.SampleSize)
	assert.Equal(t, 2, task.RequiredReviewers)
	assert.InDelta(t, 0.2, task.FPThreshold, 1e-9)
	assert.NotEmpty(t, task.SamplingConfig)
}

func TestCreateTaskSingleModeRequiresOneReviewer(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	seedBatch(t, ds, "batch-1", 5, nil, []string{"normal"})

	task, err := svc.CreateTask(context.Background(), &CreateTaskParams{
		Name:       "single audit",
		BatchRef:   "batch-1",
		SampleSize: 5,
		Mode:       datastore.ModeSingle,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, task.RequiredReviewers)
}

func TestCreateTaskClampsSampleSizeToPopulation(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	seedBatch(t, ds, "batch-small", 3, nil, []string{"normal"})

	task, err := svc.CreateTask(context.Background(), &CreateTaskParams{
		Name:       "oversized audit",
		BatchRef:   "batch-small",
		SampleSize: 50,
		Mode:       datastore.ModeSingle,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, task.SampleSize, "capacity overflow clamps, it does not fail")
}

func TestCreateTaskIgnoresDeprecatedAnnotations(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	batch := seedBatch(t, ds, "batch-dep", 4, nil, []string{"normal"})
	require.NoError(t, ds.CreateAnnotations(ctx, []datastore.Annotation{
		{BatchID: batch.ID, AnnotationRef: "dep-1", Label: "old", Deprecated: true},
	}))

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name:       "audit",
		BatchRef:   "batch-dep",
		SampleSize: 10,
		Mode:       datastore.ModeSingle,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, task.SampleSize)
}

func TestCreateTaskRejectsIncompleteBatch(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	require.NoError(t, ds.CreateBatch(ctx, &datastore.Batch{
		BatchRef: "batch-running",
		Status:   datastore.BatchRunning,
	}))

	_, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name:       "premature audit",
		BatchRef:   "batch-running",
		SampleSize: 5,
		Mode:       datastore.ModeSingle,
	})
	assert.True(t, errors.IsInvalidState(err), "expected invalid-state, got %v", err)
}

func TestCreateTaskUnknownBatch(t *testing.T) {
	svc, _ := newTestService(t, MapResolver{})

	_, err := svc.CreateTask(context.Background(), &CreateTaskParams{
		Name:       "audit",
		BatchRef:   "no-such-batch",
		SampleSize: 5,
		Mode:       datastore.ModeSingle,
	})
	assert.True(t, errors.IsNotFound(err), "expected not-found, got %v", err)
}

func TestCreateTaskValidation(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	seedBatch(t, ds, "batch-1", 5, nil, []string{"normal"})

	_, err := svc.CreateTask(context.Background(), &CreateTaskParams{
		Name: "", BatchRef: "batch-1", SampleSize: 5, Mode: datastore.ModeSingle,
	})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.CreateTask(context.Background(), &CreateTaskParams{
		Name: "audit", BatchRef: "batch-1", SampleSize: 0, Mode: datastore.ModeSingle,
	})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.CreateTask(context.Background(), &CreateTaskParams{
		Name: "audit", BatchRef: "batch-1", SampleSize: 5, Mode: "triple_blind",
	})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.CreateTask(context.Background(), &CreateTaskParams{
		Name: "audit", BatchRef: "batch-1", SampleSize: 5, Mode: datastore.ModeSingle,
		Sampling: SamplingConfig{Strategy: StrategyStratified},
	})
	assert.True(t, errors.IsValidation(err), "stratified without keys must fail")
}

func TestGenerateSamplesSnapshotsAnnotations(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	batch := seedBatch(t, ds, "batch-1", 8, []float64{0.9, 0.3}, []string{"pneumonia", "normal"})

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name: "audit", BatchRef: "batch-1", SampleSize: 8, Mode: datastore.ModeSingle,
	})
	require.NoError(t, err)

	samples, err := svc.GenerateSamples(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, samples, 8)

	annotations, err := ds.GetActiveAnnotations(ctx, batch.ID)
	require.NoError(t, err)
	byID := make(map[uint]datastore.Annotation)
	for _, a := range annotations {
		byID[a.ID] = a
	}

	persisted, err := ds.GetSamplesByTask(ctx, task.ID)
	require.NoError(t, err)
	for _, sample := range persisted {
		source, ok := byID[sample.AnnotationID]
		require.True(t, ok)
		assert.Equal(t, source.Label, sample.Label)
		assert.InDelta(t, *source.Confidence, sample.Confidence, 1e-9)
		assert.Equal(t, datastore.SamplePending, sample.Status)
	}

	updated, err := ds.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.TaskInProgress, updated.Status)
}

func TestGenerateSamplesTwiceFails(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	seedBatch(t, ds, "batch-1", 5, nil, []string{"normal"})

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name: "audit", BatchRef: "batch-1", SampleSize: 5, Mode: datastore.ModeSingle,
	})
	require.NoError(t, err)

	_, err = svc.GenerateSamples(ctx, task.ID)
	require.NoError(t, err)

	_, err = svc.GenerateSamples(ctx, task.ID)
	assert.True(t, errors.IsInvalidState(err), "expected invalid-state, got %v", err)
}

func TestGenerateSamplesStratified(t *testing.T) {
	resolver := MapResolver{}
	svc, ds := newTestService(t, resolver)
	ctx := context.Background()

	batch := seedBatch(t, ds, "batch-strat", 10, nil, []string{"x"})
	annotations, err := ds.GetActiveAnnotations(ctx, batch.ID)
	require.NoError(t, err)
	// 6 chest, 3 head, 1 abdomen
	for i, a := range annotations {
		modality := "chest"
		switch {
		case i >= 9:
			modality = "abdomen"
		case i >= 6:
			modality = "head"
		}
		resolver[a.DocumentRef] = map[string]string{"region": modality}
	}

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name: "stratified audit", BatchRef: "batch-strat", SampleSize: 5,
		Mode:     datastore.ModeSingle,
		Sampling: SamplingConfig{Strategy: StrategyStratified, Keys: []string{"region"}},
	})
	require.NoError(t, err)

	samples, err := svc.GenerateSamples(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, samples, 5)

	counts := make(map[string]int)
	for _, sample := range samples {
		counts[sample.Stratum]++
	}
	// Sorted stratum order: abdomen(1), chest(6), head(3). The abdomen
	// stratum gets its guaranteed single sample first, then chest
	// round(0.6*5)=3 and head round(0.3*5)=2 hit the budget of 5 at 1+3+1.
	assert.Equal(t, 1, counts["region:abdomen"])
	assert.Equal(t, 3, counts["region:chest"])
	assert.Equal(t, 1, counts["region:head"])
}

func TestGenerateSamplesConfidenceWeighted(t *testing.T) {
	svc, ds := newTestService(t, MapResolver{})
	ctx := context.Background()
	// 5 low (0.3), 5 high (0.9)
	seedBatch(t, ds, "batch-cw", 10, []float64{0.3, 0.9}, []string{"x"})

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name: "weighted audit", BatchRef: "batch-cw", SampleSize: 6,
		Mode:     datastore.ModeSingle,
		Sampling: SamplingConfig{Strategy: StrategyConfidenceWeighted},
	})
	require.NoError(t, err)

	samples, err := svc.GenerateSamples(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, samples, 6)

	counts := make(map[string]int)
	for _, sample := range samples {
		counts[sample.Stratum]++
	}
	// weighted shares: low 10/15, high 5/15 of 6 => 4 and 2
	assert.Equal(t, 4, counts["confidence:low"])
	assert.Equal(t, 2, counts["confidence:high"])
}
