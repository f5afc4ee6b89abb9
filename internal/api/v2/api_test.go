// api_test.go: Package api provides tests for API v2 endpoints.

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqtoolkit/pqtoolkit-go/internal/conf"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/ingest"
	"github.com/pqtoolkit/pqtoolkit-go/internal/ratings"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

// setupTestEnvironment builds a controller over a temporary SQLite database
// and asset store, with logging discarded.
func setupTestEnvironment(t *testing.T) (*echo.Echo, *Controller) {
	t.Helper()

	settings := &conf.Settings{
		AssetRoot: t.TempDir(),
		Output: conf.OutputSettings{
			SQLite: conf.SQLiteSettings{
				Enabled: true,
				Path:    filepath.Join(t.TempDir(), "test.db"),
			},
		},
	}

	ds := datastore.New(settings)
	require.NotNil(t, ds)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	store, err := samplestore.New(settings.AssetRoot)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := echo.New()
	c := &Controller{
		Echo:           e,
		DS:             ds,
		Settings:       settings,
		Store:          store,
		Engine:         ingest.NewEngine(ds),
		Ratings:        ratings.NewService(ds, store),
		logger:         log.New(io.Discard, "", 0),
		configCache:    cache.New(1*time.Minute, 5*time.Minute),
		apiLogger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		apiLoggerClose: func() error { return nil },
		isAdmin:        func(echo.Context) bool { return true },
	}
	c.Group = e.Group("/api/v2")
	c.initRoutes()

	return e, c
}

func doJSON(e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// multipartRequest builds a multipart form with parallel file and value
// fields and serves it.
func doMultipart(t *testing.T, e *echo.Echo, path string, files map[string]map[string]string, values map[string][]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, entries := range files {
		for filename, content := range entries {
			part, err := writer.CreateFormFile(field, filename)
			require.NoError(t, err)
			_, err = part.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	for field, entries := range values {
		for _, value := range entries {
			require.NoError(t, writer.WriteField(field, value))
		}
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	e, _ := setupTestEnvironment(t)

	rec := doJSON(e, http.MethodGet, "/api/v2/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "connected", response["database_status"])

	if timestamp, exists := response["timestamp"]; exists {
		_, err := time.Parse(time.RFC3339, timestamp.(string))
		assert.NoError(t, err, "Timestamp should be in RFC3339 format")
	}
}

func TestExperimentLifecycle(t *testing.T) {
	e, _ := setupTestEnvironment(t)

	// Empty listing at first
	rec := doJSON(e, http.MethodGet, "/api/v2/experiments", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list ExperimentsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Experiments)

	// Create returns the updated listing
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: "e1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"e1"}, list.Experiments)

	// Duplicate name conflicts
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: "e1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.CorrelationID)

	// Blank name is rejected
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Delete returns the updated listing
	rec = doJSON(e, http.MethodDelete, "/api/v2/experiments", ExperimentName{Name: "e1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Experiments)

	// Deleting again is NotFound
	rec = doJSON(e, http.MethodDelete, "/api/v2/experiments", ExperimentName{Name: "e1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

const testConfig = `{
	"name": "Codec comparison",
	"description": "Which codec sounds best",
	"endText": "Thank you",
	"tests": [
		{"testNumber": 1, "type": "AB", "samples": [{"sampleId": "a", "assetPath": "a.mp3"}]},
		{"testNumber": 2, "type": "MUSHRA", "reference": {"sampleId": "ref", "assetPath": "ref.mp3"}}
	]
}`

func configureTestExperiment(t *testing.T, e *echo.Echo, name string) {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: name})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doMultipart(t, e, "/api/v2/experiments/"+name,
		map[string]map[string]string{"file": {"config.json": testConfig}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestConfigUploadAndGet(t *testing.T) {
	e, _ := setupTestEnvironment(t)

	// Unknown experiment
	rec := doJSON(e, http.MethodGet, "/api/v2/experiments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Created but unconfigured
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: "e1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Upload and read back
	rec = doMultipart(t, e, "/api/v2/experiments/e1",
		map[string]map[string]string{"file": {"config.json": testConfig}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var success SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &success))
	assert.True(t, success.Success)

	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var def map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "Codec comparison", def["name"])
	tests, ok := def["tests"].([]any)
	require.True(t, ok)
	require.Len(t, tests, 2)
	first, ok := tests[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), first["testNumber"])
	assert.Equal(t, "AB", first["type"])
	assert.Contains(t, first, "samples")

	// Malformed configuration is rejected
	rec = doMultipart(t, e, "/api/v2/experiments/e1",
		map[string]map[string]string{"file": {"config.json": `{"tests": []}`}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultsEndpoints(t *testing.T) {
	e, _ := setupTestEnvironment(t)
	configureTestExperiment(t, e, "e1")

	body := map[string]any{
		"results": []any{
			map[string]any{
				"testNumber": 1,
				"selections": []any{map[string]any{"questionId": "q1", "sampleId": "a"}},
			},
		},
	}
	rec := doJSON(e, http.MethodPost, "/api/v2/experiments/e1/results", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var uploaded struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	require.Len(t, uploaded.Results, 1)
	token, ok := uploaded.Results[0]["experimentUse"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// Listing by token returns only that submission
	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1/results/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Results, 1)
	assert.Equal(t, token, listed.Results[0]["experimentUse"])

	// Out-of-range score rejects the whole batch
	bad := map[string]any{
		"results": []any{
			map[string]any{
				"testNumber":    2,
				"samplesScores": []any{map[string]any{"sampleId": "s1", "score": 140}},
			},
		},
	}
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments/e1/results", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown experiment
	rec = doJSON(e, http.MethodPost, "/api/v2/experiments/missing/results", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSampleLibrary(t *testing.T) {
	e, _ := setupTestEnvironment(t)

	// Upload and register one sample
	rec := doMultipart(t, e, "/api/v2/samples",
		map[string]map[string]string{"files": {"drums.mp3": "audio-bytes"}},
		map[string][]string{"titles": {"Drum solo"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Mismatched files and titles
	rec = doMultipart(t, e, "/api/v2/samples",
		map[string]map[string]string{"files": {"other.mp3": "x"}},
		map[string][]string{"titles": {"a", "b"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Listing carries the average rating, zero before any rating
	rec = doJSON(e, http.MethodGet, "/api/v2/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list SampleRatingList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Samples, 1)
	assert.Equal(t, "Drum solo", list.Samples[0].Name)
	assert.Zero(t, list.Samples[0].Rating)
	sampleID := list.Samples[0].SampleID

	// Rate twice, average is the mean
	for _, score := range []float64{4, 2} {
		rec = doJSON(e, http.MethodPut, "/api/v2/samples/rate",
			ratings.SampleRating{SampleID: sampleID, Rating: score})
		require.Equal(t, http.StatusOK, rec.Code)
		var rated ratings.SampleRating
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rated))
		assert.InDelta(t, score, rated.Rating, 1e-9)
	}

	rec = doJSON(e, http.MethodGet, "/api/v2/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Samples, 1)
	assert.InDelta(t, 3.0, list.Samples[0].Rating, 1e-9)

	// Stream the audio back
	req := httptest.NewRequest(http.MethodGet, "/api/v2/samples/stream?filename=drums.mp3", http.NoBody)
	streamRec := httptest.NewRecorder()
	e.ServeHTTP(streamRec, req)
	require.Equal(t, http.StatusOK, streamRec.Code)
	assert.Equal(t, samplestore.ContentType, streamRec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "audio-bytes", streamRec.Body.String())

	// Rating an unknown sample is NotFound
	rec = doJSON(e, http.MethodPut, "/api/v2/samples/rate",
		ratings.SampleRating{SampleID: "9999", Rating: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Delete removes record, ratings and file
	req = httptest.NewRequest(http.MethodDelete, "/api/v2/samples/"+sampleID, http.NoBody)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v2/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Samples)
}

func TestExperimentSamplePool(t *testing.T) {
	e, _ := setupTestEnvironment(t)
	configureTestExperiment(t, e, "e1")

	// Upload into the experiment pool
	rec := doMultipart(t, e, "/api/v2/experiments/e1/samples",
		map[string]map[string]string{"files": {"a.mp3": "pool-bytes"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paths SamplePaths
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paths))
	assert.Equal(t, []string{"e1/a.mp3"}, paths.AssetPath)

	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"a.mp3"}, names)

	// Stream from the pool
	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1/samples/a.mp3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pool-bytes", rec.Body.String())

	// Assign a global sample into the pool
	rec = doMultipart(t, e, "/api/v2/samples",
		map[string]map[string]string{"files": {"shared.mp3": "shared-bytes"}},
		map[string][]string{"titles": {"Shared"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodGet, "/api/v2/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list SampleRatingList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Samples, 1)

	rec = doJSON(e, http.MethodPost, "/api/v2/experiments/e1/samples/assign",
		AssignSampleRequest{SampleID: list.Samples[0].SampleID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paths))
	assert.Equal(t, []string{"shared.mp3"}, paths.AssetPath)

	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.ElementsMatch(t, []string{"a.mp3", "shared.mp3"}, names)

	// Delete from the pool
	req := httptest.NewRequest(http.MethodDelete, "/api/v2/experiments/e1/samples/a.mp3", http.NoBody)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v2/experiments/e1/samples/a.mp3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPathTraversalRejected(t *testing.T) {
	e, controller := setupTestEnvironment(t)

	// Route the request directly so the traversal attempt survives URL
	// normalization.
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name", "filename")
	c.SetParamValues("e1", "../../etc/passwd")

	require.NoError(t, controller.GetExperimentSample(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRequired(t *testing.T) {
	e, controller := setupTestEnvironment(t)
	controller.isAdmin = func(echo.Context) bool { return false }

	rec := doJSON(e, http.MethodPost, "/api/v2/experiments", ExperimentName{Name: "e1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doMultipart(t, e, "/api/v2/samples",
		map[string]map[string]string{"files": {"a.mp3": "x"}},
		map[string][]string{"titles": {"a"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Participant-facing endpoints stay open
	rec = doJSON(e, http.MethodGet, "/api/v2/experiments", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResultsRejectNumericStrings(t *testing.T) {
	e, _ := setupTestEnvironment(t)
	configureTestExperiment(t, e, "e1")

	// A numeric string where a number is required is rejected, not coerced
	body := strings.NewReader(`{"results":[{"testNumber":2,"samplesScores":[{"sampleId":"s1","score":"55"}]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/experiments/e1/results", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
