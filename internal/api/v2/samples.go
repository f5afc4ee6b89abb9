// internal/api/v2/samples.go
package api

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/ratings"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

// SamplePaths lists the store-relative paths of uploaded or assigned assets.
type SamplePaths struct {
	AssetPath []string `json:"asset_path"`
}

// SampleRatingList is the sample library with per-sample average ratings.
type SampleRatingList struct {
	Samples []ratings.SampleRating `json:"samples"`
}

// AssignSampleRequest selects a registered global sample for an experiment.
type AssignSampleRequest struct {
	SampleID string `json:"sampleId"`
}

// initSampleRoutes registers the asset and sample library endpoints
func (c *Controller) initSampleRoutes() {
	// Per-experiment sample pools
	c.Group.GET("/experiments/:name/samples", c.GetExperimentSamples)
	c.Group.POST("/experiments/:name/samples", c.requireAdmin(c.UploadExperimentSamples))
	c.Group.GET("/experiments/:name/samples/:filename", c.GetExperimentSample)
	c.Group.DELETE("/experiments/:name/samples/:filename", c.requireAdmin(c.DeleteExperimentSample))
	c.Group.POST("/experiments/:name/samples/assign", c.requireAdmin(c.AssignSample))

	// Global sample library
	c.Group.GET("/samples", c.GetSamples)
	c.Group.POST("/samples", c.requireAdmin(c.UploadSamples))
	c.Group.GET("/samples/stream", c.GetSampleStream)
	c.Group.PUT("/samples/rate", c.RateSample)
	c.Group.DELETE("/samples/:id", c.requireAdmin(c.DeleteSample))
}

// GetExperimentSamples lists the filenames in an experiment's pool.
func (c *Controller) GetExperimentSamples(ctx echo.Context) error {
	names, err := c.Store.List(ctx.Param("name"))
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list samples")
	}
	return ctx.JSON(http.StatusOK, names)
}

// UploadExperimentSamples stores uploaded files in the experiment's pool.
// When a parallel titles field is present each file is also registered in
// the sample library under its title.
func (c *Controller) UploadExperimentSamples(ctx echo.Context) error {
	name := ctx.Param("name")

	form, err := ctx.MultipartForm()
	if err != nil {
		return c.HandleError(ctx, err, "Multipart form is required", http.StatusBadRequest)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.HandleError(ctx, errors.NewStd("no files provided"),
			"No files provided", http.StatusBadRequest)
	}
	titles := form.Value["titles"]
	if len(titles) > 0 && len(titles) != len(files) {
		return c.HandleError(ctx, errors.NewStd("number of files and titles must match"),
			"Number of files and titles must match", http.StatusBadRequest)
	}

	paths := make([]string, 0, len(files))
	for i, fileHeader := range files {
		storedPath, err := c.storeUpload(name, fileHeader)
		if err != nil {
			return c.serviceError(ctx, err, "Failed to store sample")
		}
		if len(titles) > 0 {
			if _, err := c.DS.CreateSample(ctx.Request().Context(), titles[i], storedPath); err != nil {
				return c.serviceError(ctx, err, "Failed to register sample")
			}
		}
		paths = append(paths, storedPath)
	}
	return ctx.JSON(http.StatusOK, SamplePaths{AssetPath: paths})
}

// storeUpload streams one multipart file into the given pool.
func (c *Controller) storeUpload(scope string, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", errors.Newf("opening uploaded file %s: %v", fileHeader.Filename, err).
			Component("api").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer func() { _ = file.Close() }()

	return c.Store.Upload(scope, fileHeader.Filename, file)
}

// GetExperimentSample streams a sample from the experiment's pool.
func (c *Controller) GetExperimentSample(ctx echo.Context) error {
	reader, err := c.Store.Open(ctx.Param("name"), ctx.Param("filename"))
	if err != nil {
		return c.serviceError(ctx, err, "Failed to open sample")
	}
	defer func() { _ = reader.Close() }()

	return ctx.Stream(http.StatusOK, samplestore.ContentType, reader)
}

// DeleteExperimentSample removes a sample from the experiment's pool.
func (c *Controller) DeleteExperimentSample(ctx echo.Context) error {
	if err := c.Store.Remove(ctx.Param("name"), ctx.Param("filename")); err != nil {
		return c.serviceError(ctx, err, "Failed to delete sample")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// AssignSample copies a registered global sample into the experiment's pool.
func (c *Controller) AssignSample(ctx echo.Context) error {
	name := ctx.Param("name")

	var body AssignSampleRequest
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	sampleID, err := parseSampleID(body.SampleID)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid sample id", http.StatusBadRequest)
	}

	filename, err := c.Ratings.AssignSampleToExperiment(ctx.Request().Context(), name, sampleID)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to assign sample")
	}
	return ctx.JSON(http.StatusOK, SamplePaths{AssetPath: []string{filename}})
}

// GetSamples lists the sample library with average ratings.
func (c *Controller) GetSamples(ctx echo.Context) error {
	samples, err := c.Ratings.ListSamplesWithAverage(ctx.Request().Context())
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list samples")
	}
	return ctx.JSON(http.StatusOK, SampleRatingList{Samples: samples})
}

// UploadSamples stores uploaded files in the global pool and registers each
// under its title. Files and titles are parallel lists and must match.
func (c *Controller) UploadSamples(ctx echo.Context) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return c.HandleError(ctx, err, "Multipart form is required", http.StatusBadRequest)
	}
	files := form.File["files"]
	titles := form.Value["titles"]
	if len(files) == 0 || len(files) != len(titles) {
		return c.HandleError(ctx, errors.NewStd("number of files and titles must match"),
			"Number of files and titles must match", http.StatusBadRequest)
	}

	for i, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return c.HandleError(ctx, err, "Failed to open uploaded file", http.StatusBadRequest)
		}
		_, uploadErr := c.Ratings.UploadSample(ctx.Request().Context(), titles[i], fileHeader.Filename, file)
		_ = file.Close()
		if uploadErr != nil {
			return c.serviceError(ctx, uploadErr, "Failed to upload sample")
		}
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// GetSampleStream streams a sample from the global pool.
func (c *Controller) GetSampleStream(ctx echo.Context) error {
	filename := ctx.QueryParam("filename")

	reader, err := c.Ratings.OpenSample(filename)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to open sample")
	}
	defer func() { _ = reader.Close() }()

	return ctx.Stream(http.StatusOK, samplestore.ContentType, reader)
}

// RateSample records one rating for a sample and echoes it back.
func (c *Controller) RateSample(ctx echo.Context) error {
	var body ratings.SampleRating
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	sampleID, err := parseSampleID(body.SampleID)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid sample id", http.StatusBadRequest)
	}

	rated, err := c.Ratings.RecordRating(ctx.Request().Context(), sampleID, body.Rating)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to rate sample")
	}
	return ctx.JSON(http.StatusOK, rated)
}

// DeleteSample removes a sample from the library together with its ratings
// and its stored file.
func (c *Controller) DeleteSample(ctx echo.Context) error {
	sampleID, err := parseSampleID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid sample id", http.StatusBadRequest)
	}

	if err := c.Ratings.DeleteSample(ctx.Request().Context(), sampleID); err != nil {
		return c.serviceError(ctx, err, "Failed to delete sample")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func parseSampleID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Newf("invalid sample id %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}
