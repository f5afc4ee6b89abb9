package ratings

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqtoolkit/pqtoolkit-go/internal/conf"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

func newTestService(t *testing.T) (*Service, *samplestore.Store) {
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

	return NewService(ds, store), store
}

func TestUploadSampleRegistersAndStores(t *testing.T) {
	service, store := newTestService(t)

	sample, err := service.UploadSample(context.Background(), "Drum solo", "drums.mp3", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Drum solo", sample.Name)
	assert.Equal(t, "drums.mp3", sample.AssetPath)
	assert.NotEmpty(t, sample.SampleID)

	r, err := store.Open("", "drums.mp3")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}

func TestRecordRatingAndAverages(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	sample, err := service.UploadSample(ctx, "Drums", "drums.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	sampleID := sampleUID(t, sample.SampleID)

	first, err := service.RecordRating(ctx, sampleID, 4)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, first.Rating, 1e-9)
	assert.Equal(t, "Drums", first.Name)

	second, err := service.RecordRating(ctx, sampleID, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, second.Rating, 1e-9)

	listed, err := service.ListSamplesWithAverage(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.InDelta(t, 3.0, listed[0].Rating, 1e-9)
}

func TestRecordRatingUnknownSample(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.RecordRating(context.Background(), 999, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, datastore.ErrSampleNotFound))
}

func TestDeleteSampleRemovesRecordAndFile(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	sample, err := service.UploadSample(ctx, "Drums", "drums.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	sampleID := sampleUID(t, sample.SampleID)

	_, err = service.RecordRating(ctx, sampleID, 5)
	require.NoError(t, err)

	require.NoError(t, service.DeleteSample(ctx, sampleID))

	listed, err := service.ListSamplesWithAverage(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = store.Open("", "drums.mp3")
	assert.True(t, errors.Is(err, samplestore.ErrFileNotFound))
}

func TestAssignSampleToExperiment(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	sample, err := service.UploadSample(ctx, "Shared", "shared.mp3", strings.NewReader("payload"))
	require.NoError(t, err)
	sampleID := sampleUID(t, sample.SampleID)

	filename, err := service.AssignSampleToExperiment(ctx, "exp1", sampleID)
	require.NoError(t, err)
	assert.Equal(t, "shared.mp3", filename)

	names, err := store.List("exp1")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared.mp3"}, names)

	// Global copy is untouched
	names, err = store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared.mp3"}, names)
}

func TestUploadSampleConflict(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.UploadSample(ctx, "First", "a.mp3", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = service.UploadSample(ctx, "Second", "a.mp3", strings.NewReader("y"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, samplestore.ErrFileExists))

	// Only the first registration exists
	listed, err := service.ListSamplesWithAverage(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "First", listed[0].Name)
}

func sampleUID(t *testing.T, id string) uint {
	t.Helper()
	n, err := strconv.ParseUint(id, 10, 64)
	require.NoError(t, err)
	return uint(n)
}
