package datastore

import (
	"context"

	"gorm.io/gorm"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// CreateSample registers an uploaded asset under a title and its
// store-relative path.
func (ds *DataStore) CreateSample(ctx context.Context, title, path string) (*entities.Sample, error) {
	sample := entities.Sample{Title: title, Path: path}
	if err := ds.DB.WithContext(ctx).Create(&sample).Error; err != nil {
		return nil, databaseError("creating sample", err)
	}
	return &sample, nil
}

// GetSample retrieves a sample by its identifier.
func (ds *DataStore) GetSample(ctx context.Context, id uint) (*entities.Sample, error) {
	var sample entities.Sample
	err := ds.DB.WithContext(ctx).First(&sample, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sampleNotFound(id)
	}
	if err != nil {
		return nil, databaseError("getting sample", err)
	}
	return &sample, nil
}

// DeleteSample removes a sample and all of its ratings, ratings first, as
// one transaction. The deleted record is returned so the caller can remove
// the underlying asset file.
func (ds *DataStore) DeleteSample(ctx context.Context, id uint) (*entities.Sample, error) {
	sample, err := ds.GetSample(ctx, id)
	if err != nil {
		return nil, err
	}

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sample_id = ?", sample.ID).
			Delete(&entities.Rating{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.Sample{}, sample.ID).Error
	})
	if err != nil {
		return nil, databaseError("deleting sample", err)
	}
	return sample, nil
}

// AddRating appends a new rating to a sample. Ratings are never updated in
// place.
func (ds *DataStore) AddRating(ctx context.Context, sampleID uint, score float64) (*entities.Sample, error) {
	sample, err := ds.GetSample(ctx, sampleID)
	if err != nil {
		return nil, err
	}

	rating := entities.Rating{SampleID: sample.ID, Score: score}
	if err := ds.DB.WithContext(ctx).Create(&rating).Error; err != nil {
		return nil, databaseError("adding rating", err)
	}
	return sample, nil
}

// SamplesWithAverage returns every sample with the arithmetic mean of its
// ratings, zero when unrated. One aggregate query, so the average reflects
// a consistent snapshot even under concurrent rating submission.
func (ds *DataStore) SamplesWithAverage(ctx context.Context) ([]SampleAverage, error) {
	averages := []SampleAverage{}
	err := ds.DB.WithContext(ctx).
		Model(&entities.Sample{}).
		Select("samples.id AS id, samples.title AS title, samples.path AS path, COALESCE(AVG(ratings.score), 0) AS average_rating").
		Joins("LEFT JOIN ratings ON ratings.sample_id = samples.id").
		Group("samples.id, samples.title, samples.path").
		Order("samples.id ASC").
		Scan(&averages).Error
	if err != nil {
		return nil, databaseError("listing samples with averages", err)
	}
	return averages, nil
}
