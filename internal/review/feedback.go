// feedback.go: per-sample verdicts and the consensus state machine
//
// Sample lifecycle:
//
//	pending -> completed                    (single mode, first feedback)
//	pending -> needs_second_review          (double-blind, one feedback)
//	needs_second_review -> completed        (two agreeing verdicts)
//	needs_second_review -> in_arbitration   (two disagreeing verdicts)
//	in_arbitration -> completed             (arbitrator resolution)
//
// completed is terminal.
package review

import (
	"context"

	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
)

// SubmitFeedbackParams are the inputs for one reviewer verdict.
type SubmitFeedbackParams struct {
	TaskID            uint
	SampleID          uint
	ReviewerRef       string
	IsCorrect         bool
	CorrectedCategory string // required when IsCorrect is false
	ConfidenceLevel   string // high, medium or low
	Notes             string
}

// SubmitFeedback records one reviewer's verdict and advances the sample
// through the consensus state machine. The whole read-check-write sequence
// runs in a single transaction holding a lock on the sample row: two
// concurrent double-blind submitters are serialized, so the second one
// always observes the first one's row and the consensus comparison cannot
// be skipped.
func (s *Service) SubmitFeedback(ctx context.Context, params *SubmitFeedbackParams) (*datastore.ReviewSample, error) {
	if err := validConfidenceLevel(params.ConfidenceLevel); err != nil {
		return nil, err
	}
	if !params.IsCorrect && params.CorrectedCategory == "" {
		return nil, errors.Newf("a corrected category is required when the classification is marked incorrect").
			Component("review").
			Category(errors.CategoryValidation).
			Context("sample_id", params.SampleID).
			Build()
	}

	var sample *datastore.ReviewSample
	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		var err error
		// Lock first: everything below must be consistent with concurrent
		// submissions to the same sample.
		sample, err = tx.LockSample(ctx, params.SampleID)
		if err != nil {
			return err
		}
		if sample.TaskID != params.TaskID {
			return errors.Newf("sample %d does not belong to task %d", sample.ID, params.TaskID).
				Component("review").
				Category(errors.CategoryValidation).
				Context("sample_id", sample.ID).
				Context("task_id", params.TaskID).
				Build()
		}
		if sample.Status == datastore.SampleCompleted {
			return errors.Newf("sample %d is already completed", sample.ID).
				Component("review").
				Category(errors.CategoryInvalidState).
				Context("sample_id", sample.ID).
				Build()
		}
		// Once a sample is in arbitration only a conflict resolution may
		// touch it. Letting a third verdict through would re-run the
		// consensus comparison and orphan the arbitrator's feedback slot.
		if sample.Status == datastore.SampleInArbitration {
			return errors.Newf("sample %d is in arbitration and only accepts a conflict resolution", sample.ID).
				Component("review").
				Category(errors.CategoryInvalidState).
				Context("sample_id", sample.ID).
				Build()
		}

		task, err := tx.GetTask(ctx, params.TaskID)
		if err != nil {
			return err
		}
		reviewer, err := tx.GetReviewerByRef(ctx, params.ReviewerRef)
		if err != nil {
			return err
		}
		assignment, err := tx.GetAssignment(ctx, task.ID, reviewer.ID)
		if err != nil {
			return err
		}

		duplicate, err := tx.HasFeedback(ctx, sample.ID, reviewer.ID)
		if err != nil {
			return err
		}
		if duplicate {
			return errors.Newf("reviewer %s already submitted feedback for sample %d", params.ReviewerRef, sample.ID).
				Component("review").
				Category(errors.CategoryValidation).
				Context("sample_id", sample.ID).
				Context("reviewer_ref", params.ReviewerRef).
				Build()
		}

		priorCount, err := tx.CountFeedbackBySample(ctx, sample.ID)
		if err != nil {
			return err
		}

		feedback := &datastore.ReviewFeedback{
			SampleID:        sample.ID,
			AssignmentID:    assignment.ID,
			ReviewerID:      reviewer.ID,
			IsCorrect:       params.IsCorrect,
			ConfidenceLevel: params.ConfidenceLevel,
			Notes:           params.Notes,
			SubmissionSeq:   int(priorCount) + 1,
		}
		if !params.IsCorrect {
			corrected := params.CorrectedCategory
			feedback.CorrectedCategory = &corrected
		}
		if err := tx.CreateFeedback(ctx, feedback); err != nil {
			return err
		}

		assignment.CompletedSamples++
		if err := tx.SaveAssignment(ctx, assignment); err != nil {
			return err
		}

		return s.transitionSample(ctx, tx, task, sample, reviewer.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordFeedback(params.IsCorrect)
		s.metrics.RecordSampleTransition(sample.Status)
	}
	getLogger().Info("feedback submitted",
		"task_id", params.TaskID,
		"sample_id", params.SampleID,
		"reviewer_ref", params.ReviewerRef,
		"is_correct", params.IsCorrect,
		"sample_status", sample.Status)
	return sample, nil
}

// transitionSample runs the completion transition after a feedback insert.
// Caller holds the sample row lock.
func (s *Service) transitionSample(ctx context.Context, tx datastore.Interface, task *datastore.ReviewTask, sample *datastore.ReviewSample, reviewerID uint) error {
	if task.Mode == datastore.ModeSingle {
		// Single review completes unconditionally on first feedback.
		rows, err := tx.GetFeedbackBySample(ctx, sample.ID)
		if err != nil {
			return err
		}
		first := &rows[0]
		completeSample(sample, first.IsCorrect, first.CorrectedCategory, reviewerID)
		return tx.SaveSample(ctx, sample)
	}

	rows, err := tx.GetFeedbackBySample(ctx, sample.ID)
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		sample.Status = datastore.SampleNeedsSecondReview
		return tx.SaveSample(ctx, sample)
	}

	// The two lowest submission sequence numbers are the verdicts that
	// count; later rows (the arbitrator's) never reshuffle them.
	first, second := &rows[0], &rows[1]
	if first.IsCorrect == second.IsCorrect {
		completeSample(sample, first.IsCorrect, first.CorrectedCategory, reviewerID)
		return tx.SaveSample(ctx, sample)
	}

	sample.Status = datastore.SampleInArbitration
	if err := tx.SaveSample(ctx, sample); err != nil {
		return err
	}

	arbitrator, err := tx.GetAssignmentByRole(ctx, task.ID, datastore.RoleArbitrator)
	if err != nil {
		if errors.IsNotFound(err) {
			// The sample waits in in_arbitration until an arbitrator is
			// assigned; the workload counter catches up on resolution.
			getLogger().Warn("disagreement with no arbitrator assigned",
				"task_id", task.ID,
				"sample_id", sample.ID)
			return nil
		}
		return err
	}
	arbitrator.TotalAssigned++
	return tx.SaveAssignment(ctx, arbitrator)
}

// completeSample moves a sample to its terminal state with the final
// verdict. The corrected category is only retained for incorrect verdicts.
func completeSample(sample *datastore.ReviewSample, isCorrect bool, correctedCategory *string, reviewerID uint) {
	sample.Status = datastore.SampleCompleted
	sample.FinalIsCorrect = &isCorrect
	sample.FinalReviewerID = &reviewerID
	if !isCorrect && correctedCategory != nil {
		category := *correctedCategory
		sample.FinalCorrectCategory = &category
	}
}

// ResolveConflictParams are the inputs for an arbitration resolution.
type ResolveConflictParams struct {
	TaskID            uint
	SampleID          uint
	ArbitratorRef     string
	IsCorrect         bool
	CorrectedCategory string // required when IsCorrect is false
	Notes             string
}

// ResolveConflict records the arbitrator's binding verdict on a sample in
// arbitration. The arbitrator's vote is persisted as a regular feedback row
// so the audit trail contains all three verdicts. This is the only
// transition out of in_arbitration.
func (s *Service) ResolveConflict(ctx context.Context, params *ResolveConflictParams) (*datastore.ReviewSample, error) {
	if !params.IsCorrect && params.CorrectedCategory == "" {
		return nil, errors.Newf("a corrected category is required when the classification is marked incorrect").
			Component("review").
			Category(errors.CategoryValidation).
			Context("sample_id", params.SampleID).
			Build()
	}

	var sample *datastore.ReviewSample
	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		var err error
		sample, err = tx.LockSample(ctx, params.SampleID)
		if err != nil {
			return err
		}
		if sample.TaskID != params.TaskID {
			return errors.Newf("sample %d does not belong to task %d", sample.ID, params.TaskID).
				Component("review").
				Category(errors.CategoryValidation).
				Context("sample_id", sample.ID).
				Context("task_id", params.TaskID).
				Build()
		}
		if sample.Status != datastore.SampleInArbitration {
			return errors.Newf("sample %d is %s, conflicts can only be resolved in arbitration", sample.ID, sample.Status).
				Component("review").
				Category(errors.CategoryInvalidState).
				Context("sample_id", sample.ID).
				Context("sample_status", sample.Status).
				Build()
		}

		arbitrator, err := tx.GetReviewerByRef(ctx, params.ArbitratorRef)
		if err != nil {
			return err
		}
		assignment, err := tx.GetAssignment(ctx, params.TaskID, arbitrator.ID)
		if err != nil {
			return err
		}
		if assignment.Role != datastore.RoleArbitrator {
			return errors.Newf("reviewer %s is not the arbitrator for task %d", params.ArbitratorRef, params.TaskID).
				Component("review").
				Category(errors.CategoryValidation).
				Context("task_id", params.TaskID).
				Context("reviewer_ref", params.ArbitratorRef).
				Context("role", assignment.Role).
				Build()
		}

		priorCount, err := tx.CountFeedbackBySample(ctx, sample.ID)
		if err != nil {
			return err
		}
		// ConfidenceLevel stays empty: a ruling carries no self-assessed
		// confidence, and the empty value marks the row as the arbitration
		// entry in the audit trail.
		feedback := &datastore.ReviewFeedback{
			SampleID:      sample.ID,
			AssignmentID:  assignment.ID,
			ReviewerID:    arbitrator.ID,
			IsCorrect:     params.IsCorrect,
			Notes:         params.Notes,
			SubmissionSeq: int(priorCount) + 1,
		}
		if !params.IsCorrect {
			corrected := params.CorrectedCategory
			feedback.CorrectedCategory = &corrected
		}
		if err := tx.CreateFeedback(ctx, feedback); err != nil {
			return err
		}

		assignment.CompletedSamples++
		if err := tx.SaveAssignment(ctx, assignment); err != nil {
			return err
		}

		completeSample(sample, params.IsCorrect, feedback.CorrectedCategory, arbitrator.ID)
		return tx.SaveSample(ctx, sample)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordConflictResolved()
		s.metrics.RecordSampleTransition(sample.Status)
	}
	getLogger().Info("conflict resolved",
		"task_id", params.TaskID,
		"sample_id", params.SampleID,
		"arbitrator_ref", params.ArbitratorRef,
		"is_correct", params.IsCorrect)
	return sample, nil
}

func validConfidenceLevel(level string) error {
	switch level {
	case datastore.ConfidenceHigh, datastore.ConfidenceMedium, datastore.ConfidenceLow:
		return nil
	default:
		return errors.Newf("unknown confidence level %q", level).
			Component("review").
			Category(errors.CategoryValidation).
			Context("confidence_level", level).
			Build()
	}
}
