// assignment.go: binds reviewers to roles within a task
package review

import (
	"context"

	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
)

// AssignReviewers binds reviewers to the task. Single mode uses only the
// first reviewer ref (primary). Double-blind mode requires at least two
// refs; the first two become primary and secondary and any extras are
// silently ignored, a long-standing quirk kept for compatibility with
// callers that pass whole reviewer pools. The optional arbitrator is only
// honored in double-blind mode. Unknown refs fail the whole call; the
// transaction guarantees no partial assignment.
func (s *Service) AssignReviewers(ctx context.Context, taskID uint, reviewerRefs []string, arbitratorRef string) ([]datastore.ReviewerAssignment, error) {
	if len(reviewerRefs) == 0 {
		return nil, errors.Newf("at least one reviewer is required").
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}

	var assignments []datastore.ReviewerAssignment
	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		reviewerCount := 1
		if task.Mode == datastore.ModeDoubleBlind {
			if len(reviewerRefs) < 2 {
				return errors.Newf("double-blind review requires at least 2 reviewers, got %d", len(reviewerRefs)).
					Component("review").
					Category(errors.CategoryValidation).
					Context("task_id", task.ID).
					Context("reviewer_count", len(reviewerRefs)).
					Build()
			}
			reviewerCount = 2
			if len(reviewerRefs) > 2 {
				getLogger().Debug("ignoring extra reviewers beyond primary and secondary",
					"task_id", task.ID,
					"ignored", len(reviewerRefs)-2)
			}
		}

		sampleCount, err := tx.CountSamplesByTask(ctx, task.ID)
		if err != nil {
			return err
		}

		roles := []string{datastore.RolePrimary, datastore.RoleSecondary}
		assignments = assignments[:0]
		for i := range reviewerCount {
			reviewer, err := tx.GetReviewerByRef(ctx, reviewerRefs[i])
			if err != nil {
				return err
			}
			assignments = append(assignments, datastore.ReviewerAssignment{
				TaskID:        task.ID,
				ReviewerID:    reviewer.ID,
				Role:          roles[i],
				TotalAssigned: int(sampleCount),
				CanViewOthers: false,
			})
		}

		if task.Mode == datastore.ModeDoubleBlind && arbitratorRef != "" {
			arbitrator, err := tx.GetReviewerByRef(ctx, arbitratorRef)
			if err != nil {
				return err
			}
			// The arbitrator's workload is not known up front: TotalAssigned
			// grows one by one as disagreements surface.
			assignments = append(assignments, datastore.ReviewerAssignment{
				TaskID:        task.ID,
				ReviewerID:    arbitrator.ID,
				Role:          datastore.RoleArbitrator,
				TotalAssigned: 0,
				CanViewOthers: true,
			})
		}

		return tx.CreateAssignments(ctx, assignments)
	})
	if err != nil {
		return nil, err
	}

	getLogger().Info("reviewers assigned",
		"task_id", taskID,
		"assignments", len(assignments))
	return assignments, nil
}
