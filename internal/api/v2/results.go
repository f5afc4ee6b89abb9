// internal/api/v2/results.go
package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pqtoolkit/pqtoolkit-go/internal/testdef"
)

// ResultsList is a batch of typed test results as returned to clients.
type ResultsList struct {
	Results []testdef.Result `json:"results"`
}

// initResultRoutes registers the result ingestion and listing endpoints
func (c *Controller) initResultRoutes() {
	c.Group.POST("/experiments/:name/results", c.UploadResults)
	c.Group.GET("/experiments/:name/results", c.GetResults)
	c.Group.GET("/experiments/:name/results/:token", c.GetTestResults)
}

// UploadResults ingests a submitted batch of test results. The whole batch
// is validated before anything is stored; on success the persisted results
// are returned reshaped with their submission token.
func (c *Controller) UploadResults(ctx echo.Context) error {
	name := ctx.Param("name")

	doc, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read request body", http.StatusBadRequest)
	}

	token, results, err := c.Engine.Ingest(ctx.Request().Context(), name, doc)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to ingest results")
	}

	c.apiLogger.Info("results ingested", "experiment", name, "token", token, "count", len(results))
	return ctx.JSON(http.StatusOK, ResultsList{Results: results})
}

// GetResults lists every stored result of an experiment.
func (c *Controller) GetResults(ctx echo.Context) error {
	return c.listResults(ctx, "")
}

// GetTestResults lists the stored results of one submission.
func (c *Controller) GetTestResults(ctx echo.Context) error {
	return c.listResults(ctx, ctx.Param("token"))
}

func (c *Controller) listResults(ctx echo.Context, token string) error {
	name := ctx.Param("name")

	results, err := c.Engine.ListResults(ctx.Request().Context(), name, token)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list results")
	}
	return ctx.JSON(http.StatusOK, ResultsList{Results: results})
}
