// internal/api/feedback.go
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinreview/clinreview/internal/errors"
	"github.com/clinreview/clinreview/internal/review"
)

// initFeedbackRoutes registers feedback and arbitration endpoints
func (c *Controller) initFeedbackRoutes() {
	c.Group.POST("/samples/:id/feedback", c.SubmitFeedback)
	c.Group.POST("/samples/:id/resolution", c.ResolveConflict)
}

// SubmitFeedbackRequest is the request body for submitting a verdict
type SubmitFeedbackRequest struct {
	TaskID            uint   `json:"task_id"`
	ReviewerRef       string `json:"reviewer_ref"`
	IsCorrect         bool   `json:"is_correct"`
	CorrectedCategory string `json:"corrected_category,omitempty"`
	ConfidenceLevel   string `json:"confidence_level"`
	Notes             string `json:"notes,omitempty"`
}

// ResolveConflictRequest is the request body for an arbitration ruling
type ResolveConflictRequest struct {
	TaskID            uint   `json:"task_id"`
	ArbitratorRef     string `json:"arbitrator_ref"`
	IsCorrect         bool   `json:"is_correct"`
	CorrectedCategory string `json:"corrected_category,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// parseSampleID extracts and validates the :id path parameter.
func parseSampleID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Newf("invalid sample ID: %s", ctx.Param("id")).
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}

// SubmitFeedback handles POST /api/v1/samples/:id/feedback
func (c *Controller) SubmitFeedback(ctx echo.Context) error {
	sampleID, err := parseSampleID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid sample ID")
	}

	var req SubmitFeedbackRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).Category(errors.CategoryValidation).Build(),
			"Invalid request body")
	}

	sample, err := c.Service.SubmitFeedback(ctx.Request().Context(), &review.SubmitFeedbackParams{
		TaskID:            req.TaskID,
		SampleID:          sampleID,
		ReviewerRef:       req.ReviewerRef,
		IsCorrect:         req.IsCorrect,
		CorrectedCategory: req.CorrectedCategory,
		ConfidenceLevel:   req.ConfidenceLevel,
		Notes:             req.Notes,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to submit feedback")
	}

	resp := sampleToResponse(sample)
	return ctx.JSON(http.StatusCreated, &resp)
}

// ResolveConflict handles POST /api/v1/samples/:id/resolution
func (c *Controller) ResolveConflict(ctx echo.Context) error {
	sampleID, err := parseSampleID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid sample ID")
	}

	var req ResolveConflictRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).Category(errors.CategoryValidation).Build(),
			"Invalid request body")
	}

	sample, err := c.Service.ResolveConflict(ctx.Request().Context(), &review.ResolveConflictParams{
		TaskID:            req.TaskID,
		SampleID:          sampleID,
		ArbitratorRef:     req.ArbitratorRef,
		IsCorrect:         req.IsCorrect,
		CorrectedCategory: req.CorrectedCategory,
		Notes:             req.Notes,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve conflict")
	}

	resp := sampleToResponse(sample)
	return ctx.JSON(http.StatusOK, &resp)
}
