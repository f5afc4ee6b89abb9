package datastore

import (
	"fmt"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// Sentinel errors for datastore operations. Typed errors let callers
// distinguish failure modes without string matching or GORM-specific errors.
var (
	// ErrExperimentNotFound indicates the requested experiment does not exist.
	ErrExperimentNotFound = errors.NewStd("experiment not found")

	// ErrExperimentExists indicates the experiment name is already taken.
	ErrExperimentExists = errors.NewStd("experiment already exists")

	// ErrExperimentNotConfigured indicates the experiment exists but has no
	// uploaded test set.
	ErrExperimentNotConfigured = errors.NewStd("experiment not configured")

	// ErrSampleNotFound indicates the requested sample does not exist.
	ErrSampleNotFound = errors.NewStd("sample not found")

	// ErrTestVanished indicates a referenced test disappeared between batch
	// validation and commit, i.e. a concurrent reconfiguration won the race.
	ErrTestVanished = errors.NewStd("referenced test no longer exists")
)

func experimentNotFound(name string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrExperimentNotFound, name)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("experiment", name).
		Build()
}

func experimentExists(name string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrExperimentExists, name)).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("experiment", name).
		Build()
}

func experimentNotConfigured(name string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrExperimentNotConfigured, name)).
		Component("datastore").
		Category(errors.CategoryNotConfigured).
		Context("experiment", name).
		Build()
}

func sampleNotFound(id uint) error {
	return errors.New(fmt.Errorf("%w: id %d", ErrSampleNotFound, id)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("sample_id", id).
		Build()
}

func databaseError(op string, err error) error {
	return errors.Newf("%s: %v", op, err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}
