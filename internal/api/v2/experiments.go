// internal/api/v2/experiments.go
package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/testdef"
)

// ExperimentsList is the listing of all experiment names.
type ExperimentsList struct {
	Experiments []string `json:"experiments"`
}

// ExperimentName carries an experiment name in a request body.
type ExperimentName struct {
	Name string `json:"name"`
}

// initExperimentRoutes registers the experiment lifecycle endpoints
func (c *Controller) initExperimentRoutes() {
	c.Group.GET("/experiments", c.GetExperiments)
	c.Group.POST("/experiments", c.requireAdmin(c.AddExperiment))
	c.Group.DELETE("/experiments", c.requireAdmin(c.DeleteExperiment))
	c.Group.POST("/experiments/:name", c.requireAdmin(c.SetUpExperiment))
	c.Group.GET("/experiments/:name", c.GetExperiment)
}

// GetExperiments lists the names of all experiments.
func (c *Controller) GetExperiments(ctx echo.Context) error {
	names, err := c.DS.ListExperiments(ctx.Request().Context())
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list experiments")
	}
	return ctx.JSON(http.StatusOK, ExperimentsList{Experiments: names})
}

// AddExperiment creates a new, unconfigured experiment and returns the
// updated listing.
func (c *Controller) AddExperiment(ctx echo.Context) error {
	var body ExperimentName
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.HandleError(ctx, errors.NewStd("experiment name is required"),
			"Invalid request body", http.StatusBadRequest)
	}

	if err := c.DS.CreateExperiment(ctx.Request().Context(), name); err != nil {
		return c.serviceError(ctx, err, "Failed to create experiment")
	}
	return c.GetExperiments(ctx)
}

// DeleteExperiment removes an experiment with everything it owns and returns
// the updated listing.
func (c *Controller) DeleteExperiment(ctx echo.Context) error {
	var body ExperimentName
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.HandleError(ctx, errors.NewStd("experiment name is required"),
			"Invalid request body", http.StatusBadRequest)
	}

	if err := c.DS.RemoveExperiment(ctx.Request().Context(), name); err != nil {
		return c.serviceError(ctx, err, "Failed to delete experiment")
	}
	c.configCache.Delete(name)
	return c.GetExperiments(ctx)
}

// SetUpExperiment uploads an experiment configuration as a multipart file,
// replacing any previous test set in full.
func (c *Controller) SetUpExperiment(ctx echo.Context) error {
	name := ctx.Param("name")

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "Configuration file is required", http.StatusBadRequest)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to open uploaded file", http.StatusBadRequest)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
	}

	def, err := testdef.ParseExperimentDefinition(data)
	if err != nil {
		return c.serviceError(ctx, err, "Invalid experiment configuration")
	}

	if err := c.DS.ReplaceConfiguration(ctx.Request().Context(), name, def); err != nil {
		return c.serviceError(ctx, err, "Failed to set up experiment")
	}

	c.configCache.Delete(name)
	c.apiLogger.Info("experiment configured", "experiment", name, "tests", len(def.Tests))
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// GetExperiment returns the full configuration of a configured experiment.
// Definitions are cached briefly; uploads and deletes invalidate the entry.
func (c *Controller) GetExperiment(ctx echo.Context) error {
	name := ctx.Param("name")

	if cached, found := c.configCache.Get(name); found {
		if def, ok := cached.(*testdef.ExperimentDefinition); ok {
			return ctx.JSON(http.StatusOK, def)
		}
	}

	def, err := c.DS.GetConfiguredExperiment(ctx.Request().Context(), name)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to get experiment")
	}

	c.configCache.SetDefault(name, def)
	return ctx.JSON(http.StatusOK, def)
}
