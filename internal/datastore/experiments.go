package datastore

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/testdef"
)

// CreateExperiment registers a new experiment under a unique name. The
// uniqueness check is the database constraint itself, not a check-then-insert.
func (ds *DataStore) CreateExperiment(ctx context.Context, name string) error {
	experiment := entities.Experiment{Name: name}
	if err := ds.DB.WithContext(ctx).Create(&experiment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return experimentExists(name)
		}
		return databaseError("creating experiment", err)
	}
	return nil
}

// GetExperiment retrieves an experiment by name with its tests preloaded in
// insertion order.
func (ds *DataStore) GetExperiment(ctx context.Context, name string) (*entities.Experiment, error) {
	var experiment entities.Experiment
	err := ds.DB.WithContext(ctx).
		Preload("Tests", func(db *gorm.DB) *gorm.DB {
			return db.Order("tests.id ASC")
		}).
		Where("name = ?", name).
		First(&experiment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, experimentNotFound(name)
	}
	if err != nil {
		return nil, databaseError("getting experiment", err)
	}
	return &experiment, nil
}

// ListExperiments returns the names of all experiments, order not significant.
func (ds *DataStore) ListExperiments(ctx context.Context) ([]string, error) {
	names := []string{}
	err := ds.DB.WithContext(ctx).
		Model(&entities.Experiment{}).
		Pluck("name", &names).Error
	if err != nil {
		return nil, databaseError("listing experiments", err)
	}
	return names, nil
}

// RemoveExperiment deletes an experiment together with everything it owns,
// children before parents, as one transaction.
func (ds *DataStore) RemoveExperiment(ctx context.Context, name string) error {
	experiment, err := ds.GetExperiment(ctx, name)
	if err != nil {
		return err
	}

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteExperimentChildren(tx, experiment.ID, true)
	})
	if err != nil {
		return databaseError("removing experiment", err)
	}
	return nil
}

// deleteExperimentChildren removes everything an experiment owns in
// dependency order. When dropParent is true the experiment row itself is
// deleted as well.
func deleteExperimentChildren(tx *gorm.DB, experimentID uint, dropParent bool) error {
	testIDs := tx.Model(&entities.Test{}).
		Select("id").
		Where("experiment_id = ?", experimentID)

	if err := tx.Where("test_id IN (?)", testIDs).
		Delete(&entities.ExperimentTestResult{}).Error; err != nil {
		return err
	}
	if err := tx.Where("experiment_id = ?", experimentID).
		Delete(&entities.Submission{}).Error; err != nil {
		return err
	}
	if err := tx.Where("experiment_id = ?", experimentID).
		Delete(&entities.Test{}).Error; err != nil {
		return err
	}
	if dropParent {
		if err := tx.Delete(&entities.Experiment{}, experimentID).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceConfiguration swaps the experiment's entire test set for the one in
// def: every existing test and its results is deleted, the new tests are
// inserted in input order and the experiment is marked configured. The whole
// replacement is one transaction; a failure partway leaves the prior
// configuration intact.
func (ds *DataStore) ReplaceConfiguration(ctx context.Context, name string, def *testdef.ExperimentDefinition) error {
	experiment, err := ds.GetExperiment(ctx, name)
	if err != nil {
		return err
	}

	tests := make([]entities.Test, 0, len(def.Tests))
	for i := range def.Tests {
		setup, err := json.Marshal(def.Tests[i].Setup)
		if err != nil {
			return errors.Newf("encoding setup of test %d: %v", def.Tests[i].TestNumber, err).
				Component("datastore").
				Category(errors.CategoryValidation).
				Context("test_number", def.Tests[i].TestNumber).
				Build()
		}
		tests = append(tests, entities.Test{
			ExperimentID: experiment.ID,
			Number:       def.Tests[i].TestNumber,
			Type:         string(def.Tests[i].Type),
			Setup:        string(setup),
		})
	}

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteExperimentChildren(tx, experiment.ID, false); err != nil {
			return err
		}

		updates := map[string]any{
			"full_name":   def.Name,
			"description": def.Description,
			"end_text":    def.EndText,
			"configured":  true,
		}
		if err := tx.Model(&entities.Experiment{}).
			Where("id = ?", experiment.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		for i := range tests {
			if err := tx.Create(&tests[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return databaseError("replacing experiment configuration", err)
	}
	return nil
}

// GetConfiguredExperiment returns the merged definition of a configured
// experiment: display fields plus the ordered tests with their numbers,
// types and setup payloads.
func (ds *DataStore) GetConfiguredExperiment(ctx context.Context, name string) (*testdef.ExperimentDefinition, error) {
	experiment, err := ds.GetExperiment(ctx, name)
	if err != nil {
		return nil, err
	}
	if !experiment.Configured {
		return nil, experimentNotConfigured(name)
	}

	def := &testdef.ExperimentDefinition{
		Name:        experiment.FullName,
		Description: experiment.Description,
		EndText:     experiment.EndText,
		UID:         experiment.ID,
		Tests:       make([]testdef.TestDefinition, 0, len(experiment.Tests)),
	}

	for i := range experiment.Tests {
		test := &experiment.Tests[i]
		testType, err := testdef.ParseTestType(test.Type)
		if err != nil {
			return nil, databaseError("decoding stored test type", err)
		}

		var setup map[string]json.RawMessage
		if test.Setup != "" {
			if err := json.Unmarshal([]byte(test.Setup), &setup); err != nil {
				return nil, databaseError("decoding stored test setup", err)
			}
		}

		def.Tests = append(def.Tests, testdef.TestDefinition{
			TestNumber: test.Number,
			Type:       testType,
			Setup:      setup,
		})
	}

	return def, nil
}
