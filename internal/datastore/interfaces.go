// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/errors"
	"github.com/clinreview/clinreview/internal/observability/metrics"
)

// Interface defines the database operations used by the review workflow.
// Transaction returns an Interface bound to the transaction so the workflow
// core can run its read-check-write sequences atomically without knowing
// about GORM.
type Interface interface {
	Open() error
	Close() error
	Transaction(ctx context.Context, fn func(tx Interface) error) error

	// Collaborator data: batches, annotations, documents, reviewers.
	CreateBatch(ctx context.Context, batch *Batch) error
	GetBatchByRef(ctx context.Context, batchRef string) (*Batch, error)
	CreateAnnotations(ctx context.Context, annotations []Annotation) error
	CountActiveAnnotations(ctx context.Context, batchID uint) (int64, error)
	GetActiveAnnotations(ctx context.Context, batchID uint) ([]Annotation, error)
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByRef(ctx context.Context, documentRef string) (*Document, error)
	CreateReviewer(ctx context.Context, reviewer *Reviewer) error
	GetReviewerByRef(ctx context.Context, reviewerRef string) (*Reviewer, error)

	// Review tasks.
	CreateTask(ctx context.Context, task *ReviewTask) error
	GetTask(ctx context.Context, taskID uint) (*ReviewTask, error)
	SaveTask(ctx context.Context, task *ReviewTask) error

	// Review samples.
	CreateSamples(ctx context.Context, samples []ReviewSample) error
	GetSample(ctx context.Context, sampleID uint) (*ReviewSample, error)
	LockSample(ctx context.Context, sampleID uint) (*ReviewSample, error)
	SaveSample(ctx context.Context, sample *ReviewSample) error
	GetSamplesByTask(ctx context.Context, taskID uint) ([]ReviewSample, error)
	CountSamplesByTask(ctx context.Context, taskID uint) (int64, error)
	CountSamplesByTaskAndStatus(ctx context.Context, taskID uint, status string) (int64, error)

	// Reviewer assignments.
	CreateAssignments(ctx context.Context, assignments []ReviewerAssignment) error
	GetAssignment(ctx context.Context, taskID, reviewerID uint) (*ReviewerAssignment, error)
	GetAssignmentByRole(ctx context.Context, taskID uint, role string) (*ReviewerAssignment, error)
	SaveAssignment(ctx context.Context, assignment *ReviewerAssignment) error

	// Review feedback.
	CreateFeedback(ctx context.Context, feedback *ReviewFeedback) error
	GetFeedbackBySample(ctx context.Context, sampleID uint) ([]ReviewFeedback, error)
	CountFeedbackBySample(ctx context.Context, sampleID uint) (int64, error)
	HasFeedback(ctx context.Context, sampleID, reviewerID uint) (bool, error)
	GetFeedbackForTask(ctx context.Context, taskID uint) (map[uint][]ReviewFeedback, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	Metrics *metrics.DatastoreMetrics // optional, nil disables instrumentation
}

// New creates a new DataStore instance based on the provided configuration.
func New(settings *conf.Settings, dsMetrics *metrics.DatastoreMetrics) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{Metrics: dsMetrics},
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{Metrics: dsMetrics},
			Settings:  settings,
		}
	default:
		return nil
	}
}

// Open is implemented by the concrete stores.
func (ds *DataStore) Open() error {
	return fmt.Errorf("open not implemented on generic DataStore")
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database: %w", err)
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction. fn receives an
// Interface bound to the transaction; any error rolls the transaction back.
func (ds *DataStore) Transaction(ctx context.Context, fn func(tx Interface) error) error {
	start := time.Now()
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DataStore{DB: tx, Metrics: ds.Metrics})
	})
	if ds.Metrics != nil {
		ds.Metrics.ObserveTransaction(time.Since(start), err)
	}
	return err
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

func notFoundError(entity string, key any) error {
	return errors.Newf("%s not found", entity).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("key", fmt.Sprintf("%v", key)).
		Build()
}

// CreateBatch inserts a new batch record.
func (ds *DataStore) CreateBatch(ctx context.Context, batch *Batch) error {
	if err := ds.DB.WithContext(ctx).Create(batch).Error; err != nil {
		return dbError(err, "create_batch")
	}
	return nil
}

// GetBatchByRef retrieves a batch by its external reference.
func (ds *DataStore) GetBatchByRef(ctx context.Context, batchRef string) (*Batch, error) {
	var batch Batch
	err := ds.DB.WithContext(ctx).Where("batch_ref = ?", batchRef).First(&batch).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("batch", batchRef)
	case err != nil:
		return nil, dbError(err, "get_batch")
	}
	return &batch, nil
}

// CreateAnnotations bulk-inserts annotations.
func (ds *DataStore) CreateAnnotations(ctx context.Context, annotations []Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	if err := ds.DB.WithContext(ctx).CreateInBatches(annotations, 100).Error; err != nil {
		return dbError(err, "create_annotations")
	}
	return nil
}

// CountActiveAnnotations counts non-deprecated annotations for a batch.
func (ds *DataStore) CountActiveAnnotations(ctx context.Context, batchID uint) (int64, error) {
	var count int64
	err := ds.DB.WithContext(ctx).Model(&Annotation{}).
		Where("batch_id = ? AND deprecated = ?", batchID, false).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_annotations")
	}
	return count, nil
}

// GetActiveAnnotations loads all non-deprecated annotations for a batch in
// a stable order.
func (ds *DataStore) GetActiveAnnotations(ctx context.Context, batchID uint) ([]Annotation, error) {
	var annotations []Annotation
	err := ds.DB.WithContext(ctx).
		Where("batch_id = ? AND deprecated = ?", batchID, false).
		Order("id ASC").
		Find(&annotations).Error
	if err != nil {
		return nil, dbError(err, "get_annotations")
	}
	return annotations, nil
}

// CreateDocument inserts a document record.
func (ds *DataStore) CreateDocument(ctx context.Context, doc *Document) error {
	if err := ds.DB.WithContext(ctx).Create(doc).Error; err != nil {
		return dbError(err, "create_document")
	}
	return nil
}

// GetDocumentByRef retrieves a document by its external reference.
func (ds *DataStore) GetDocumentByRef(ctx context.Context, documentRef string) (*Document, error) {
	var doc Document
	err := ds.DB.WithContext(ctx).Where("document_ref = ?", documentRef).First(&doc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("document", documentRef)
	case err != nil:
		return nil, dbError(err, "get_document")
	}
	return &doc, nil
}

// CreateReviewer inserts a reviewer directory record.
func (ds *DataStore) CreateReviewer(ctx context.Context, reviewer *Reviewer) error {
	if err := ds.DB.WithContext(ctx).Create(reviewer).Error; err != nil {
		return dbError(err, "create_reviewer")
	}
	return nil
}

// GetReviewerByRef retrieves a reviewer by external reference.
func (ds *DataStore) GetReviewerByRef(ctx context.Context, reviewerRef string) (*Reviewer, error) {
	var reviewer Reviewer
	err := ds.DB.WithContext(ctx).Where("reviewer_ref = ?", reviewerRef).First(&reviewer).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("reviewer", reviewerRef)
	case err != nil:
		return nil, dbError(err, "get_reviewer")
	}
	return &reviewer, nil
}

// CreateTask inserts a new review task.
func (ds *DataStore) CreateTask(ctx context.Context, task *ReviewTask) error {
	if err := ds.DB.WithContext(ctx).Create(task).Error; err != nil {
		return dbError(err, "create_task")
	}
	return nil
}

// GetTask retrieves a review task by ID.
func (ds *DataStore) GetTask(ctx context.Context, taskID uint) (*ReviewTask, error) {
	var task ReviewTask
	err := ds.DB.WithContext(ctx).First(&task, taskID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("task", taskID)
	case err != nil:
		return nil, dbError(err, "get_task")
	}
	return &task, nil
}

// SaveTask persists changes to a review task.
func (ds *DataStore) SaveTask(ctx context.Context, task *ReviewTask) error {
	if err := ds.DB.WithContext(ctx).Save(task).Error; err != nil {
		return dbError(err, "save_task")
	}
	return nil
}

// CreateSamples bulk-inserts review samples. Callers run this inside
// Transaction so a partial sample set is never visible.
func (ds *DataStore) CreateSamples(ctx context.Context, samples []ReviewSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ds.DB.WithContext(ctx).CreateInBatches(samples, 100).Error; err != nil {
		return dbError(err, "create_samples")
	}
	return nil
}

// GetSample retrieves a review sample by ID.
func (ds *DataStore) GetSample(ctx context.Context, sampleID uint) (*ReviewSample, error) {
	var sample ReviewSample
	err := ds.DB.WithContext(ctx).First(&sample, sampleID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("sample", sampleID)
	case err != nil:
		return nil, dbError(err, "get_sample")
	}
	return &sample, nil
}

// LockSample retrieves a review sample with a row lock, serializing
// concurrent feedback submissions to the same sample. On MySQL this is
// SELECT ... FOR UPDATE; SQLite serializes writers on its own and rejects
// the FOR UPDATE syntax, so the clause is only applied on MySQL.
func (ds *DataStore) LockSample(ctx context.Context, sampleID uint) (*ReviewSample, error) {
	var sample ReviewSample
	tx := ds.DB.WithContext(ctx)
	if tx.Dialector.Name() == "mysql" {
		tx = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	err := tx.First(&sample, sampleID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("sample", sampleID)
	case err != nil:
		return nil, dbError(err, "lock_sample")
	}
	return &sample, nil
}

// SaveSample persists changes to a review sample.
func (ds *DataStore) SaveSample(ctx context.Context, sample *ReviewSample) error {
	if err := ds.DB.WithContext(ctx).Save(sample).Error; err != nil {
		return dbError(err, "save_sample")
	}
	return nil
}

// GetSamplesByTask loads all samples for a task in creation order.
func (ds *DataStore) GetSamplesByTask(ctx context.Context, taskID uint) ([]ReviewSample, error) {
	var samples []ReviewSample
	err := ds.DB.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&samples).Error
	if err != nil {
		return nil, dbError(err, "get_samples")
	}
	return samples, nil
}

// CountSamplesByTask counts all samples belonging to a task.
func (ds *DataStore) CountSamplesByTask(ctx context.Context, taskID uint) (int64, error) {
	var count int64
	err := ds.DB.WithContext(ctx).Model(&ReviewSample{}).
		Where("task_id = ?", taskID).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_samples")
	}
	return count, nil
}

// CountSamplesByTaskAndStatus counts samples for a task in a given status.
func (ds *DataStore) CountSamplesByTaskAndStatus(ctx context.Context, taskID uint, status string) (int64, error) {
	var count int64
	err := ds.DB.WithContext(ctx).Model(&ReviewSample{}).
		Where("task_id = ? AND status = ?", taskID, status).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_samples_by_status")
	}
	return count, nil
}

// CreateAssignments inserts reviewer assignments. Callers run this inside
// Transaction so assignment is all-or-nothing.
func (ds *DataStore) CreateAssignments(ctx context.Context, assignments []ReviewerAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	if err := ds.DB.WithContext(ctx).Create(&assignments).Error; err != nil {
		return dbError(err, "create_assignments")
	}
	return nil
}

// GetAssignment retrieves the assignment binding a reviewer to a task.
func (ds *DataStore) GetAssignment(ctx context.Context, taskID, reviewerID uint) (*ReviewerAssignment, error) {
	var assignment ReviewerAssignment
	err := ds.DB.WithContext(ctx).
		Where("task_id = ? AND reviewer_id = ?", taskID, reviewerID).
		First(&assignment).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("assignment", fmt.Sprintf("task=%d reviewer=%d", taskID, reviewerID))
	case err != nil:
		return nil, dbError(err, "get_assignment")
	}
	return &assignment, nil
}

// GetAssignmentByRole retrieves a task's assignment for a given role.
func (ds *DataStore) GetAssignmentByRole(ctx context.Context, taskID uint, role string) (*ReviewerAssignment, error) {
	var assignment ReviewerAssignment
	err := ds.DB.WithContext(ctx).
		Where("task_id = ? AND role = ?", taskID, role).
		First(&assignment).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError("assignment", fmt.Sprintf("task=%d role=%s", taskID, role))
	case err != nil:
		return nil, dbError(err, "get_assignment_by_role")
	}
	return &assignment, nil
}

// SaveAssignment persists changes to a reviewer assignment.
func (ds *DataStore) SaveAssignment(ctx context.Context, assignment *ReviewerAssignment) error {
	if err := ds.DB.WithContext(ctx).Save(assignment).Error; err != nil {
		return dbError(err, "save_assignment")
	}
	return nil
}

// CreateFeedback inserts a feedback row. The unique index on
// (sample_id, reviewer_id) makes a concurrent duplicate fail here even if
// it slipped past the transactional pre-check.
func (ds *DataStore) CreateFeedback(ctx context.Context, feedback *ReviewFeedback) error {
	if err := ds.DB.WithContext(ctx).Create(feedback).Error; err != nil {
		return dbError(err, "create_feedback")
	}
	return nil
}

// GetFeedbackBySample loads all feedback rows for a sample ordered by
// submission sequence. The first two rows are the ones that count for
// consensus.
func (ds *DataStore) GetFeedbackBySample(ctx context.Context, sampleID uint) ([]ReviewFeedback, error) {
	var feedback []ReviewFeedback
	err := ds.DB.WithContext(ctx).
		Where("sample_id = ?", sampleID).
		Order("submission_seq ASC").
		Find(&feedback).Error
	if err != nil {
		return nil, dbError(err, "get_feedback")
	}
	return feedback, nil
}

// CountFeedbackBySample counts feedback rows for a sample.
func (ds *DataStore) CountFeedbackBySample(ctx context.Context, sampleID uint) (int64, error) {
	var count int64
	err := ds.DB.WithContext(ctx).Model(&ReviewFeedback{}).
		Where("sample_id = ?", sampleID).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_feedback")
	}
	return count, nil
}

// HasFeedback reports whether a reviewer has already submitted feedback for
// a sample.
func (ds *DataStore) HasFeedback(ctx context.Context, sampleID, reviewerID uint) (bool, error) {
	var count int64
	err := ds.DB.WithContext(ctx).Model(&ReviewFeedback{}).
		Where("sample_id = ? AND reviewer_id = ?", sampleID, reviewerID).
		Count(&count).Error
	if err != nil {
		return false, dbError(err, "has_feedback")
	}
	return count > 0, nil
}

// GetFeedbackForTask loads all feedback for a task's samples, grouped by
// sample ID, ordered within each group by submission sequence.
func (ds *DataStore) GetFeedbackForTask(ctx context.Context, taskID uint) (map[uint][]ReviewFeedback, error) {
	var feedback []ReviewFeedback
	err := ds.DB.WithContext(ctx).
		Joins("JOIN review_samples ON review_samples.id = review_feedbacks.sample_id").
		Where("review_samples.task_id = ?", taskID).
		Order("review_feedbacks.sample_id ASC, review_feedbacks.submission_seq ASC").
		Find(&feedback).Error
	if err != nil {
		return nil, dbError(err, "get_feedback_for_task")
	}
	grouped := make(map[uint][]ReviewFeedback)
	for i := range feedback {
		grouped[feedback[i].SampleID] = append(grouped[feedback[i].SampleID], feedback[i])
	}
	return grouped, nil
}

// performAutoMigration runs GORM auto-migration for all entities.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Batch{},
		&Annotation{},
		&Document{},
		&Reviewer{},
		&ReviewTask{},
		&ReviewSample{},
		&ReviewerAssignment{},
		&ReviewFeedback{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}
	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}
	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
