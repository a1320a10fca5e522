// internal/api/api.go
package api

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/errors"
	"github.com/clinreview/clinreview/internal/logging"
	"github.com/clinreview/clinreview/internal/observability"
	"github.com/clinreview/clinreview/internal/review"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Service  *review.Service

	metrics        *observability.Metrics
	metricsCache   *cache.Cache // caches task metric reports
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// metricsCacheTTL bounds how stale a cached metrics report may get.
const metricsCacheTTL = 30 * time.Second

// New creates a new API controller and registers all routes on e.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	svc *review.Service, m *observability.Metrics) *Controller {

	c := &Controller{
		Echo:         e,
		DS:           ds,
		Settings:     settings,
		Service:      svc,
		metrics:      m,
		metricsCache: cache.New(metricsCacheTTL, time.Minute),
	}

	// Initialize structured logger for API operations
	c.apiLevelVar = new(slog.LevelVar)
	if settings != nil && settings.WebServer.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	}
	logger, closeFunc, err := logging.NewFileLogger("logs/api.log", "api", c.apiLevelVar)
	if err != nil {
		logger = logging.NoopLogger()
		closeFunc = func() error { return nil }
	}
	c.apiLogger = logger
	c.apiLoggerClose = closeFunc

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.initRoutes()

	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.initTaskRoutes()
	c.initFeedbackRoutes()

	// Operational endpoints live outside the versioned group.
	c.Echo.GET("/healthz", c.HealthCheck)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// HealthCheck handles the health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Shutdown closes the API logger. Call during server teardown.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			slog.Error("failed to close API log file", "error", err)
		}
	}
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// statusForError maps error categories to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalidState(err):
		return http.StatusConflict
	case errors.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// generateCorrelationID creates a short identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response. The
// HTTP status is derived from the error's category.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := statusForError(err)
	resp := &ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}

	if c.apiLogger != nil {
		c.apiLogger.Error("API Error",
			"correlation_id", resp.CorrelationID,
			"message", message,
			"error", err.Error(),
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP(),
		)
	}

	return ctx.JSON(code, resp)
}

// Debug logs a debug message when web server debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings != nil && c.Settings.WebServer.Debug {
		c.apiLogger.Debug(fmt.Sprintf(format, v...))
	}
}
