// Package ratings aggregates crowd ratings over the sample library and
// coordinates sample lifecycle between the database and the asset store.
package ratings

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

// SampleRating is one sample as presented to clients: identity, display
// name, where its audio lives and a rating. On listings Rating is the
// arithmetic mean of all submitted ratings, zero when unrated; on a rating
// submission it echoes the just-recorded score.
type SampleRating struct {
	SampleID  string  `json:"sampleId"`
	Name      string  `json:"name"`
	AssetPath string  `json:"assetPath"`
	Rating    float64 `json:"rating"`
}

// Service implements the sample library operations.
type Service struct {
	ds    datastore.Interface
	store *samplestore.Store
	log   *slog.Logger
}

// NewService creates a ratings service over the given datastore and asset
// store.
func NewService(ds datastore.Interface, store *samplestore.Store) *Service {
	return &Service{
		ds:    ds,
		store: store,
		log:   logging.ForService("ratings"),
	}
}

// RecordRating appends a rating to a sample and returns the sample with the
// just-submitted score. Ratings accumulate, they never overwrite.
func (s *Service) RecordRating(ctx context.Context, sampleID uint, score float64) (*SampleRating, error) {
	sample, err := s.ds.AddRating(ctx, sampleID, score)
	if err != nil {
		return nil, err
	}
	return &SampleRating{
		SampleID:  strconv.FormatUint(uint64(sample.ID), 10),
		Name:      sample.Title,
		AssetPath: sample.Path,
		Rating:    score,
	}, nil
}

// ListSamplesWithAverage returns every registered sample with the mean of
// its ratings. One aggregate query regardless of library size.
func (s *Service) ListSamplesWithAverage(ctx context.Context) ([]SampleRating, error) {
	averages, err := s.ds.SamplesWithAverage(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]SampleRating, 0, len(averages))
	for i := range averages {
		samples = append(samples, SampleRating{
			SampleID:  strconv.FormatUint(uint64(averages[i].ID), 10),
			Name:      averages[i].Title,
			AssetPath: averages[i].Path,
			Rating:    averages[i].AverageRating,
		})
	}
	return samples, nil
}

// UploadSample streams an asset into the global pool and registers it under
// the given title. The stored file is removed again if registration fails,
// so the store and the database stay consistent.
func (s *Service) UploadSample(ctx context.Context, title, filename string, data io.Reader) (*SampleRating, error) {
	storedPath, err := s.store.Upload("", filename, data)
	if err != nil {
		return nil, err
	}

	sample, err := s.ds.CreateSample(ctx, title, storedPath)
	if err != nil {
		if removeErr := s.store.RemovePath(storedPath); removeErr != nil {
			s.log.Warn("orphaned sample file after failed registration",
				"path", storedPath, "error", removeErr)
		}
		return nil, err
	}

	s.log.Info("sample uploaded", "sample_id", sample.ID, "path", storedPath)
	return &SampleRating{
		SampleID:  strconv.FormatUint(uint64(sample.ID), 10),
		Name:      sample.Title,
		AssetPath: sample.Path,
	}, nil
}

// OpenSample streams a registered sample's audio from the global pool.
func (s *Service) OpenSample(filename string) (io.ReadCloser, error) {
	return s.store.Open("", filename)
}

// DeleteSample removes a sample's ratings and record, then its file. The
// record goes first: losing the file of a deleted record is recoverable
// noise, a record pointing at a deleted file is not.
func (s *Service) DeleteSample(ctx context.Context, sampleID uint) error {
	sample, err := s.ds.DeleteSample(ctx, sampleID)
	if err != nil {
		return err
	}

	if err := s.store.RemovePath(sample.Path); err != nil {
		s.log.Warn("sample record deleted but file removal failed",
			"sample_id", sampleID, "path", sample.Path, "error", err)
	}
	return nil
}

// AssignSampleToExperiment copies a registered global sample's bytes into an
// experiment's pool and returns the filename it lives under there. The
// global sample is left intact.
func (s *Service) AssignSampleToExperiment(ctx context.Context, experimentName string, sampleID uint) (string, error) {
	sample, err := s.ds.GetSample(ctx, sampleID)
	if err != nil {
		return "", err
	}

	scope, filename := samplestore.SplitPath(sample.Path)
	if _, err := s.store.Copy(scope, filename, experimentName); err != nil {
		return "", err
	}
	return filename, nil
}
