// model.go this code defines the data model for the application
package datastore

import "time"

// Batch lifecycle statuses. Batches are produced by the classification
// pipeline; this service only ever reads them and requires BatchCompleted
// before a review task can be created.
const (
	BatchPending   = "pending"
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// Batch represents one completed classification run, as handed over by the
// batch execution pipeline.
type Batch struct {
	ID        uint   `gorm:"primaryKey"`
	BatchRef  string `gorm:"uniqueIndex;not null;type:varchar(64)"` // external reference from the pipeline
	Name      string
	Status    string `gorm:"type:varchar(20);index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Annotations []Annotation `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

// Annotation is one AI-produced classification of a document. Confidence is
// nullable because some providers return labels without a score.
type Annotation struct {
	ID            uint   `gorm:"primaryKey"`
	BatchID       uint   `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:BatchID;references:ID"`
	AnnotationRef string `gorm:"index;type:varchar(64)"`
	DocumentRef   string `gorm:"index;type:varchar(64)"` // key for attribute lookups on the parent document
	Label         string `gorm:"type:varchar(255)"`
	Confidence    *float64
	Deprecated    bool `gorm:"index"`
	CreatedAt     time.Time
}

// Document carries the categorical attributes of the report an annotation
// classified. Attributes is a flat JSON object of string values; the
// stratification engine looks fields up through an AttributeResolver and
// falls back to "unknown" when a field is absent.
type Document struct {
	ID          uint   `gorm:"primaryKey"`
	DocumentRef string `gorm:"uniqueIndex;not null;type:varchar(64)"`
	Attributes  string `gorm:"type:text"` // JSON object: {"field": "value", ...}
	CreatedAt   time.Time
}

// Reviewer is a directory stub for a physician who reviews samples. Only
// existence matters to this service.
type Reviewer struct {
	ID          uint   `gorm:"primaryKey"`
	ReviewerRef string `gorm:"uniqueIndex;not null;type:varchar(64)"`
	Name        string
	CreatedAt   time.Time
}

// Review modes.
const (
	ModeSingle      = "single"
	ModeDoubleBlind = "double_blind"
)

// ReviewTask statuses. TaskArbitration is declared for parity with the
// task-level status vocabulary but no service logic transitions into it;
// only samples reach an arbitration state.
const (
	TaskPending     = "pending"
	TaskInProgress  = "in_progress"
	TaskArbitration = "arbitration"
	TaskCompleted   = "completed"
)

// ReviewTask is one audit campaign over a single completed batch.
type ReviewTask struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"type:varchar(255)"`
	BatchID           uint   `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:BatchID;references:ID"`
	SampleSize        int
	SamplingConfig    string  `gorm:"type:text"`        // JSON, see review.SamplingConfig
	Mode              string  `gorm:"type:varchar(20)"` // single or double_blind
	RequiredReviewers int     // 1 for single, 2 for double_blind
	FPThreshold       float64 // acceptable false positive rate
	Status            string  `gorm:"type:varchar(20);index"`
	FPRate            *float64
	AgreementRate     *float64
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Samples     []ReviewSample       `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Assignments []ReviewerAssignment `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// ReviewSample statuses.
const (
	SamplePending           = "pending"
	SampleNeedsSecondReview = "needs_second_review"
	SampleInArbitration     = "in_arbitration"
	SampleCompleted         = "completed"
)

// ReviewSample is one unit of review: a snapshot of one annotation taken at
// sampling time. Label and Confidence are frozen here so a later change to
// the source annotation cannot alter what the reviewers judged.
type ReviewSample struct {
	ID           uint   `gorm:"primaryKey"`
	TaskID       uint   `gorm:"index:idx_samples_task;index:idx_samples_task_status;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:TaskID;references:ID"`
	AnnotationID uint   `gorm:"index;not null"`
	Stratum      string `gorm:"type:varchar(255)"` // may be empty for unstratified sampling
	Label        string `gorm:"type:varchar(255)"` // snapshot of the annotation label
	Confidence   float64
	Status       string `gorm:"type:varchar(30);index:idx_samples_task_status"`

	// Final determination, set only by the consensus state machine.
	FinalIsCorrect       *bool
	FinalCorrectCategory *string `gorm:"type:varchar(255)"` // non-nil only when FinalIsCorrect is false
	FinalReviewerID      *uint   // reviewer or arbitrator who made the final call

	CreatedAt time.Time
	UpdatedAt time.Time

	Feedback []ReviewFeedback `gorm:"foreignKey:SampleID;constraint:OnDelete:CASCADE"`
}

// Reviewer roles.
const (
	RolePrimary    = "primary"
	RoleSecondary  = "secondary"
	RoleArbitrator = "arbitrator"
)

// ReviewerAssignment binds one reviewer to one role within one task. The
// arbitrator's TotalAssigned starts at 0 and grows as disagreements are
// discovered.
type ReviewerAssignment struct {
	ID               uint   `gorm:"primaryKey"`
	TaskID           uint   `gorm:"uniqueIndex:idx_assignment_task_reviewer;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:TaskID;references:ID"`
	ReviewerID       uint   `gorm:"uniqueIndex:idx_assignment_task_reviewer;not null"`
	Role             string `gorm:"type:varchar(20)"`
	CompletedSamples int
	TotalAssigned    int
	CanViewOthers    bool // always false for primary/secondary in double-blind, true for arbitrator
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Feedback confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ReviewFeedback is one reviewer's verdict on one sample. Immutable once
// created. The unique index on (SampleID, ReviewerID) backs the
// at-most-one-feedback-per-reviewer invariant at the schema level; the
// submission transaction enforces it with a pre-check as well.
// SubmissionSeq is assigned under the sample row lock and defines which two
// feedbacks count for consensus.
type ReviewFeedback struct {
	ID                uint `gorm:"primaryKey"`
	SampleID          uint `gorm:"uniqueIndex:idx_feedback_sample_reviewer;index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:SampleID;references:ID"`
	AssignmentID      uint `gorm:"index;not null"`
	ReviewerID        uint `gorm:"uniqueIndex:idx_feedback_sample_reviewer;not null"`
	IsCorrect         bool
	CorrectedCategory *string `gorm:"type:varchar(255)"` // required when IsCorrect is false
	ConfidenceLevel   string  `gorm:"type:varchar(10)"`  // high/medium/low; empty on arbitration rulings, which carry no self-assessed confidence
	Notes             string  `gorm:"type:text"`
	SubmissionSeq     int     `gorm:"not null"`
	CreatedAt         time.Time
}
