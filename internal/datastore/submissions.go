package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// SaveSubmission persists one submission row and every result of the batch
// as a single transaction. The referenced tests are re-verified inside the
// transaction, so a reconfiguration committing between batch validation and
// this call aborts the whole batch instead of attaching results to deleted
// tests. Nothing is persisted on any failure.
func (ds *DataStore) SaveSubmission(ctx context.Context, experimentID uint, token string, results []entities.ExperimentTestResult) error {
	testIDSet := make(map[uint]bool, len(results))
	testIDs := make([]uint, 0, len(results))
	for i := range results {
		if !testIDSet[results[i].TestID] {
			testIDSet[results[i].TestID] = true
			testIDs = append(testIDs, results[i].TestID)
		}
	}

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entities.Test{}).
			Where("id IN ? AND experiment_id = ?", testIDs, experimentID).
			Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(testIDs)) {
			return fmt.Errorf("%w: experiment was reconfigured concurrently", ErrTestVanished)
		}

		submission := entities.Submission{
			Token:        token,
			ExperimentID: experimentID,
		}
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}

		for i := range results {
			results[i].SubmissionID = submission.ID
			if err := tx.Create(&results[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTestVanished) {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryInvalidBatch).
				Context("experiment_id", experimentID).
				Build()
		}
		return databaseError("saving submission", err)
	}
	return nil
}

// ListResults returns every persisted result under the experiment, joined
// with its test's number and type and its submission token. A non-empty
// token narrows the listing to one submission.
func (ds *DataStore) ListResults(ctx context.Context, experimentName, token string) ([]StoredResult, error) {
	// Resolve the experiment first so an unknown name is NotFound rather
	// than an empty listing.
	experiment, err := ds.GetExperiment(ctx, experimentName)
	if err != nil {
		return nil, err
	}

	query := ds.DB.WithContext(ctx).
		Model(&entities.ExperimentTestResult{}).
		Select("experiment_test_results.payload AS payload, submissions.token AS token, tests.number AS test_number, tests.type AS type").
		Joins("JOIN tests ON tests.id = experiment_test_results.test_id").
		Joins("JOIN submissions ON submissions.id = experiment_test_results.submission_id").
		Where("tests.experiment_id = ?", experiment.ID)
	if token != "" {
		query = query.Where("submissions.token = ?", token)
	}

	var results []StoredResult
	if err := query.Order("experiment_test_results.id ASC").Scan(&results).Error; err != nil {
		return nil, databaseError("listing results", err)
	}
	return results, nil
}
