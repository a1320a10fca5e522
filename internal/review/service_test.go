// service_test.go: shared test fixtures for the review workflow
package review

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) datastore.Interface {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps concurrent transactions on the same
	// in-memory database instead of separate ones.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&datastore.Batch{},
		&datastore.Annotation{},
		&datastore.Document{},
		&datastore.Reviewer{},
		&datastore.ReviewTask{},
		&datastore.ReviewSample{},
		&datastore.ReviewerAssignment{},
		&datastore.ReviewFeedback{},
	))

	return &datastore.DataStore{DB: db}
}

func testReviewConfig() *conf.ReviewConfig {
	return &conf.ReviewConfig{
		DefaultStrategy:     StrategyRandom,
		ConfidenceThreshold: 0.7,
		LowConfidenceWeight: 2.0,
		FPThreshold:         0.1,
	}
}

// newTestService wires a Service against a fresh in-memory database with a
// seeded sampler for reproducible draws.
func newTestService(t *testing.T, resolver AttributeResolver) (*Service, datastore.Interface) {
	t.Helper()

	ds := setupTestDB(t)
	svc := NewService(ds, testReviewConfig(), resolver, nil)
	svc.SetSampler(NewSeededSampler(1, 2))
	return svc, ds
}

func floatPtr(f float64) *float64 { return &f }

// seedBatch creates a completed batch with count annotations. Confidences
// cycle through the given values; labels cycle through given categories.
func seedBatch(t *testing.T, ds datastore.Interface, batchRef string, count int, confidences []float64, labels []string) *datastore.Batch {
	t.Helper()
	ctx := context.Background()

	batch := &datastore.Batch{
		BatchRef: batchRef,
		Name:     "test batch " + batchRef,
		Status:   datastore.BatchCompleted,
	}
	require.NoError(t, ds.CreateBatch(ctx, batch))

	annotations := make([]datastore.Annotation, 0, count)
	for i := range count {
		annotation := datastore.Annotation{
			BatchID:       batch.ID,
			AnnotationRef: fmt.Sprintf("%s-ann-%d", batchRef, i),
			DocumentRef:   fmt.Sprintf("%s-doc-%d", batchRef, i),
			Label:         labels[i%len(labels)],
		}
		if len(confidences) > 0 {
			annotation.Confidence = floatPtr(confidences[i%len(confidences)])
		}
		annotations = append(annotations, annotation)
	}
	require.NoError(t, ds.CreateAnnotations(ctx, annotations))
	return batch
}

// seedReviewers creates reviewer directory entries and returns their refs.
func seedReviewers(t *testing.T, ds datastore.Interface, refs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, ref := range refs {
		require.NoError(t, ds.CreateReviewer(ctx, &datastore.Reviewer{
			ReviewerRef: ref,
			Name:        "Dr. " + ref,
		}))
	}
}

// setupTask creates a task and generates its samples, returning the task
// and samples ready for review.
func setupTask(t *testing.T, svc *Service, ds datastore.Interface, mode string, sampleSize int) (*datastore.ReviewTask, []datastore.ReviewSample) {
	t.Helper()
	ctx := context.Background()

	batchRef := fmt.Sprintf("batch-%s-%d", mode, sampleSize)
	seedBatch(t, ds, batchRef, sampleSize, []float64{0.95, 0.6, 0.3}, []string{"pneumonia", "normal"})

	task, err := svc.CreateTask(ctx, &CreateTaskParams{
		Name:        "audit " + batchRef,
		BatchRef:    batchRef,
		SampleSize:  sampleSize,
		Mode:        mode,
		FPThreshold: 0.2,
	})
	require.NoError(t, err)

	samples, err := svc.GenerateSamples(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, samples, sampleSize)

	// Reload to get IDs assigned by the bulk insert.
	samples, err = ds.GetSamplesByTask(ctx, task.ID)
	require.NoError(t, err)
	return task, samples
}
