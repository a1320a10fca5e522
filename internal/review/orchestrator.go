// orchestrator.go: review task creation and sample generation
package review

import (
	"context"
	"time"

	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
)

// CreateTaskParams are the inputs for creating a review task.
type CreateTaskParams struct {
	Name        string
	BatchRef    string
	SampleSize  int
	Mode        string // single or double_blind
	Sampling    SamplingConfig
	FPThreshold float64 // zero means the configured default
}

// CreateTask validates the batch and persists a new review task in pending
// status. A sample size above the available population is clamped, not
// rejected: capacity is a fact of the batch, not a caller mistake.
func (s *Service) CreateTask(ctx context.Context, params *CreateTaskParams) (*datastore.ReviewTask, error) {
	if params.Name == "" {
		return nil, errors.Newf("task name must not be empty").
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
	if params.SampleSize <= 0 {
		return nil, errors.Newf("sample size must be positive, got %d", params.SampleSize).
			Component("review").
			Category(errors.CategoryValidation).
			Context("sample_size", params.SampleSize).
			Build()
	}

	requiredReviewers := 1
	switch params.Mode {
	case datastore.ModeSingle:
	case datastore.ModeDoubleBlind:
		requiredReviewers = 2
	default:
		return nil, errors.Newf("unknown review mode %q", params.Mode).
			Component("review").
			Category(errors.CategoryValidation).
			Context("mode", params.Mode).
			Build()
	}

	samplingConfig := params.Sampling
	samplingConfig.ApplyDefaults(s.config)
	if err := samplingConfig.Validate(); err != nil {
		return nil, err
	}
	rawConfig, err := samplingConfig.Marshal()
	if err != nil {
		return nil, err
	}

	batch, err := s.ds.GetBatchByRef(ctx, params.BatchRef)
	if err != nil {
		return nil, err
	}
	if batch.Status != datastore.BatchCompleted {
		return nil, errors.Newf("batch %s is %s, review requires a completed batch", batch.BatchRef, batch.Status).
			Component("review").
			Category(errors.CategoryInvalidState).
			Context("batch_ref", batch.BatchRef).
			Context("batch_status", batch.Status).
			Build()
	}

	available, err := s.ds.CountActiveAnnotations(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	sampleSize := params.SampleSize
	if int64(sampleSize) > available {
		getLogger().Warn("requested sample size exceeds available annotations, clamping",
			"batch_ref", batch.BatchRef,
			"requested", sampleSize,
			"available", available)
		sampleSize = int(available)
	}

	fpThreshold := params.FPThreshold
	if fpThreshold == 0 {
		fpThreshold = s.config.FPThreshold
	}

	task := &datastore.ReviewTask{
		Name:              params.Name,
		BatchID:           batch.ID,
		SampleSize:        sampleSize,
		SamplingConfig:    rawConfig,
		Mode:              params.Mode,
		RequiredReviewers: requiredReviewers,
		FPThreshold:       fpThreshold,
		Status:            datastore.TaskPending,
	}
	if err := s.ds.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTaskCreated(params.Mode)
	}
	getLogger().Info("review task created",
		"task_id", task.ID,
		"batch_ref", batch.BatchRef,
		"mode", task.Mode,
		"sample_size", task.SampleSize,
		"strategy", samplingConfig.Strategy)
	return task, nil
}

// GenerateSamples selects the task's review subset and persists it,
// transitioning the task from pending to in_progress. The whole operation
// runs in one transaction so a partial sample set is never visible.
func (s *Service) GenerateSamples(ctx context.Context, taskID uint) ([]datastore.ReviewSample, error) {
	start := time.Now()
	var samples []datastore.ReviewSample
	var strategy string

	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != datastore.TaskPending {
			return errors.Newf("task %d is %s, samples can only be generated once from pending", task.ID, task.Status).
				Component("review").
				Category(errors.CategoryInvalidState).
				Context("task_id", task.ID).
				Context("task_status", task.Status).
				Build()
		}

		samplingConfig, err := ParseSamplingConfig(task.SamplingConfig)
		if err != nil {
			return err
		}
		samplingConfig.ApplyDefaults(s.config)
		strategy = samplingConfig.Strategy

		annotations, err := tx.GetActiveAnnotations(ctx, task.BatchID)
		if err != nil {
			return err
		}

		picked, stratumByID := s.selectAnnotations(ctx, annotations, task.SampleSize, samplingConfig)

		byID := make(map[uint]*datastore.Annotation, len(annotations))
		for i := range annotations {
			byID[annotations[i].ID] = &annotations[i]
		}

		samples = make([]datastore.ReviewSample, 0, len(picked))
		for _, annotationID := range picked {
			annotation := byID[annotationID]
			samples = append(samples, datastore.ReviewSample{
				TaskID:       task.ID,
				AnnotationID: annotation.ID,
				Stratum:      stratumByID[annotation.ID],
				Label:        annotation.Label,
				Confidence:   annotationConfidence(annotation),
				Status:       datastore.SamplePending,
			})
		}
		if err := tx.CreateSamples(ctx, samples); err != nil {
			return err
		}

		task.Status = datastore.TaskInProgress
		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSamplesGenerated(strategy, len(samples), time.Since(start))
	}
	getLogger().Info("samples generated",
		"task_id", taskID,
		"strategy", strategy,
		"count", len(samples),
		"duration_ms", time.Since(start).Milliseconds())
	return samples, nil
}

// selectAnnotations dispatches to the configured sampling policy and
// returns the picked annotation IDs plus each pick's stratum label.
func (s *Service) selectAnnotations(ctx context.Context, annotations []datastore.Annotation, size int, cfg *SamplingConfig) (picked []uint, stratumByID map[uint]string) {
	stratumByID = make(map[uint]string)

	switch cfg.Strategy {
	case StrategyStratified:
		stratifier := &Stratifier{Resolver: s.resolver}
		strata := stratifier.Stratify(ctx, annotations, cfg.Keys)
		var counts map[string]int
		picked, counts = s.sampler.Proportional(strata, size)
		for label, members := range strata {
			for _, id := range members {
				stratumByID[id] = label
			}
		}
		getLogger().Debug("stratified sampling realized counts",
			"strata", len(strata), "counts", counts)

	case StrategyConfidenceWeighted:
		var lowCount, highCount int
		picked, lowCount, highCount = s.sampler.ConfidenceWeighted(annotations, size, cfg.ConfidenceThreshold, cfg.LowConfidenceWeight)
		for i := range annotations {
			if annotationConfidence(&annotations[i]) < cfg.ConfidenceThreshold {
				stratumByID[annotations[i].ID] = ConfidenceKey + ":low"
			} else {
				stratumByID[annotations[i].ID] = ConfidenceKey + ":high"
			}
		}
		getLogger().Debug("confidence-weighted sampling realized counts",
			"low", lowCount, "high", highCount)

	default:
		ids := make([]uint, len(annotations))
		for i := range annotations {
			ids[i] = annotations[i].ID
		}
		picked = s.sampler.Uniform(ids, size)
	}

	return picked, stratumByID
}
