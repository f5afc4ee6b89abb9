// internal/api/v2/api.go
package api

import (
	"crypto/rand"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/pqtoolkit/pqtoolkit-go/internal/conf"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/ingest"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
	"github.com/pqtoolkit/pqtoolkit-go/internal/ratings"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Store    *samplestore.Store
	Engine   *ingest.Engine
	Ratings  *ratings.Service

	logger         *log.Logger
	configCache    *cache.Cache // cache for configured experiment definitions
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error

	// isAdmin guards the administrative endpoints. Injected from the server
	// so the API package stays agnostic of the authentication scheme.
	isAdmin func(echo.Context) bool
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAdminCheck sets the predicate that authorizes administrative requests.
func WithAdminCheck(check func(echo.Context) bool) Option {
	return func(c *Controller) {
		c.isAdmin = check
	}
}

// New creates a new API controller, returning an error if initialization fails.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	store *samplestore.Store, logger *log.Logger, opts ...Option) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		Store:       store,
		Engine:      ingest.NewEngine(ds),
		Ratings:     ratings.NewService(ds, store),
		logger:      logger,
		configCache: cache.New(1*time.Minute, 5*time.Minute),
		// Without an injected check every request is administrative,
		// which is the single-operator deployment default.
		isAdmin: func(echo.Context) bool { return true },
	}

	for _, opt := range opts {
		opt(c)
	}

	// Initialize structured logger for API requests
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	if settings.WebServer.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	} else {
		c.apiLevelVar.Set(slog.LevelInfo)
	}

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: Failed to initialize API structured logger: %v", err)
		// Fallback to a disabled logger that still respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
		logger.Printf("API structured logging initialized to %s", apiLogPath)
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(c.LoggingMiddleware())
	c.initRoutes()

	return c, nil
}

// LoggingMiddleware logs every API request with its latency and outcome.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			attrs := []slog.Attr{
				slog.String("method", ctx.Request().Method),
				slog.String("path", ctx.Request().URL.Path),
				slog.Int("status", ctx.Response().Status),
				slog.String("ip", ctx.RealIP()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}

			c.apiLogger.LogAttrs(ctx.Request().Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible
	c.Group.GET("/health", c.HealthCheck)

	c.initExperimentRoutes()
	c.initResultRoutes()
	c.initSampleRoutes()
}

// requireAdmin wraps a handler with the injected admin predicate.
func (c *Controller) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !c.isAdmin(ctx) {
			return c.HandleError(ctx, errors.NewStd("administrative privileges required"),
				"Unauthorized", http.StatusUnauthorized)
		}
		return next(ctx)
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if c.Settings != nil && c.Settings.WebServer.Debug {
		response["environment"] = "development"
	} else {
		response["environment"] = "production"
	}

	// Simple connectivity probe against the datastore
	dbStatus := "connected"
	if _, err := c.DS.ListExperiments(ctx.Request().Context()); err != nil {
		dbStatus = "disconnected"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	return ctx.JSON(http.StatusOK, response)
}

// Shutdown performs cleanup of all resources used by the API controller
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}

	if c.configCache != nil {
		c.configCache.Flush()
	}
}

// Error response structure
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// SuccessResponse confirms a state-changing operation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking using
// cryptographic randomness
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

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()
	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}
	c.apiLogger.Error("API Error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ip,
	)

	return ctx.JSON(code, errorResp)
}

// serviceError maps a core-package error onto its HTTP status and responds.
func (c *Controller) serviceError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusForError(err))
}

// statusForError translates error categories into HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound),
		errors.IsCategory(err, errors.CategoryNotConfigured):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryInvalidBatch),
		errors.IsCategory(err, errors.CategoryPathViolation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		c.logger.Printf(format, v...)
	}
}
