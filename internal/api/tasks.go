// internal/api/tasks.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
	"github.com/clinreview/clinreview/internal/review"
)

// initTaskRoutes registers all task-related API endpoints
func (c *Controller) initTaskRoutes() {
	c.Group.POST("/tasks", c.CreateTask)
	c.Group.GET("/tasks/:id", c.GetTask)
	c.Group.POST("/tasks/:id/samples", c.GenerateSamples)
	c.Group.GET("/tasks/:id/samples", c.GetTaskSamples)
	c.Group.POST("/tasks/:id/assignments", c.AssignReviewers)
	c.Group.GET("/tasks/:id/metrics", c.GetTaskMetrics)
}

// CreateTaskRequest is the request body for creating a review task
type CreateTaskRequest struct {
	Name        string                `json:"name"`
	BatchRef    string                `json:"batch_ref"`
	SampleSize  int                   `json:"sample_size"`
	Mode        string                `json:"mode"`
	Sampling    review.SamplingConfig `json:"sampling"`
	FPThreshold float64               `json:"fp_threshold,omitempty"`
}

// AssignReviewersRequest is the request body for assigning reviewers
type AssignReviewersRequest struct {
	ReviewerRefs  []string `json:"reviewer_refs"`
	ArbitratorRef string   `json:"arbitrator_ref,omitempty"`
}

// TaskResponse represents a review task in the API response
type TaskResponse struct {
	ID                uint       `json:"id"`
	Name              string     `json:"name"`
	BatchID           uint       `json:"batch_id"`
	SampleSize        int        `json:"sample_size"`
	Mode              string     `json:"mode"`
	RequiredReviewers int        `json:"required_reviewers"`
	FPThreshold       float64    `json:"fp_threshold"`
	Status            string     `json:"status"`
	FPRate            *float64   `json:"fp_rate,omitempty"`
	AgreementRate     *float64   `json:"agreement_rate,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// SampleResponse represents a review sample in the API response
type SampleResponse struct {
	ID                   uint    `json:"id"`
	TaskID               uint    `json:"task_id"`
	AnnotationID         uint    `json:"annotation_id"`
	Stratum              string  `json:"stratum,omitempty"`
	Label                string  `json:"label"`
	Confidence           float64 `json:"confidence"`
	Status               string  `json:"status"`
	FinalIsCorrect       *bool   `json:"final_is_correct,omitempty"`
	FinalCorrectCategory *string `json:"final_correct_category,omitempty"`
}

// AssignmentResponse represents a reviewer assignment in the API response
type AssignmentResponse struct {
	ID               uint   `json:"id"`
	TaskID           uint   `json:"task_id"`
	ReviewerID       uint   `json:"reviewer_id"`
	Role             string `json:"role"`
	TotalAssigned    int    `json:"total_assigned"`
	CompletedSamples int    `json:"completed_samples"`
}

func taskToResponse(task *datastore.ReviewTask) *TaskResponse {
	return &TaskResponse{
		ID:                task.ID,
		Name:              task.Name,
		BatchID:           task.BatchID,
		SampleSize:        task.SampleSize,
		Mode:              task.Mode,
		RequiredReviewers: task.RequiredReviewers,
		FPThreshold:       task.FPThreshold,
		Status:            task.Status,
		FPRate:            task.FPRate,
		AgreementRate:     task.AgreementRate,
		CreatedAt:         task.CreatedAt,
		CompletedAt:       task.CompletedAt,
	}
}

func sampleToResponse(sample *datastore.ReviewSample) SampleResponse {
	return SampleResponse{
		ID:                   sample.ID,
		TaskID:               sample.TaskID,
		AnnotationID:         sample.AnnotationID,
		Stratum:              sample.Stratum,
		Label:                sample.Label,
		Confidence:           sample.Confidence,
		Status:               sample.Status,
		FinalIsCorrect:       sample.FinalIsCorrect,
		FinalCorrectCategory: sample.FinalCorrectCategory,
	}
}

// parseTaskID extracts and validates the :id path parameter.
func parseTaskID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Newf("invalid task ID: %s", ctx.Param("id")).
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}

// CreateTask handles POST /api/v1/tasks
func (c *Controller) CreateTask(ctx echo.Context) error {
	var req CreateTaskRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).Category(errors.CategoryValidation).Build(),
			"Invalid request body")
	}

	task, err := c.Service.CreateTask(ctx.Request().Context(), &review.CreateTaskParams{
		Name:        req.Name,
		BatchRef:    req.BatchRef,
		SampleSize:  req.SampleSize,
		Mode:        req.Mode,
		Sampling:    req.Sampling,
		FPThreshold: req.FPThreshold,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create review task")
	}

	c.Debug("created review task %d (%s)", task.ID, task.Name)
	return ctx.JSON(http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/v1/tasks/:id
func (c *Controller) GetTask(ctx echo.Context) error {
	taskID, err := parseTaskID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task ID")
	}

	task, err := c.DS.GetTask(ctx.Request().Context(), taskID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get review task")
	}

	return ctx.JSON(http.StatusOK, taskToResponse(task))
}

// GenerateSamples handles POST /api/v1/tasks/:id/samples
func (c *Controller) GenerateSamples(ctx echo.Context) error {
	taskID, err := parseTaskID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task ID")
	}

	samples, err := c.Service.GenerateSamples(ctx.Request().Context(), taskID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to generate samples")
	}

	resp := make([]SampleResponse, 0, len(samples))
	for i := range samples {
		resp = append(resp, sampleToResponse(&samples[i]))
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// GetTaskSamples handles GET /api/v1/tasks/:id/samples
func (c *Controller) GetTaskSamples(ctx echo.Context) error {
	taskID, err := parseTaskID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task ID")
	}

	// A missing task must not read as an empty sample list.
	if _, err := c.DS.GetTask(ctx.Request().Context(), taskID); err != nil {
		return c.HandleError(ctx, err, "Failed to get review task")
	}

	samples, err := c.DS.GetSamplesByTask(ctx.Request().Context(), taskID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get samples")
	}

	resp := make([]SampleResponse, 0, len(samples))
	for i := range samples {
		resp = append(resp, sampleToResponse(&samples[i]))
	}
	return ctx.JSON(http.StatusOK, resp)
}

// AssignReviewers handles POST /api/v1/tasks/:id/assignments
func (c *Controller) AssignReviewers(ctx echo.Context) error {
	taskID, err := parseTaskID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task ID")
	}

	var req AssignReviewersRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).Category(errors.CategoryValidation).Build(),
			"Invalid request body")
	}

	assignments, err := c.Service.AssignReviewers(ctx.Request().Context(), taskID,
		req.ReviewerRefs, req.ArbitratorRef)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to assign reviewers")
	}

	resp := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		resp = append(resp, AssignmentResponse{
			ID:               a.ID,
			TaskID:           a.TaskID,
			ReviewerID:       a.ReviewerID,
			Role:             a.Role,
			TotalAssigned:    a.TotalAssigned,
			CompletedSamples: a.CompletedSamples,
		})
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// GetTaskMetrics handles GET /api/v1/tasks/:id/metrics. Reports are
// cached briefly since metric calculation walks every sample of the task.
func (c *Controller) GetTaskMetrics(ctx echo.Context) error {
	taskID, err := parseTaskID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task ID")
	}

	cacheKey := fmt.Sprintf("task-metrics-%d", taskID)
	if cached, found := c.metricsCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached.(*review.MetricsReport))
	}

	report, err := c.Service.CalculateMetrics(ctx.Request().Context(), taskID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to calculate metrics")
	}

	c.metricsCache.Set(cacheKey, report, cache.DefaultExpiration)
	return ctx.JSON(http.StatusOK, report)
}
