// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"

	"gorm.io/gorm"

	"github.com/pqtoolkit/pqtoolkit-go/internal/conf"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/testdef"
)

// StoredResult is one persisted result row joined with the metadata needed
// to reshape it: the owning test's number and type plus the submission token.
type StoredResult struct {
	Payload    string
	Token      string
	TestNumber int
	Type       string
}

// SampleAverage is one sample together with the arithmetic mean of its
// ratings, zero when unrated.
type SampleAverage struct {
	ID            uint
	Title         string
	Path          string
	AverageRating float64
}

// Interface abstracts the underlying database implementation and defines
// the persistence operations of the platform.
type Interface interface {
	Open() error
	Close() error

	// Experiment configuration lifecycle
	CreateExperiment(ctx context.Context, name string) error
	GetExperiment(ctx context.Context, name string) (*entities.Experiment, error)
	ListExperiments(ctx context.Context) ([]string, error)
	RemoveExperiment(ctx context.Context, name string) error
	ReplaceConfiguration(ctx context.Context, name string, def *testdef.ExperimentDefinition) error
	GetConfiguredExperiment(ctx context.Context, name string) (*testdef.ExperimentDefinition, error)

	// Result submissions
	SaveSubmission(ctx context.Context, experimentID uint, token string, results []entities.ExperimentTestResult) error
	ListResults(ctx context.Context, experimentName, token string) ([]StoredResult, error)

	// Samples and ratings
	CreateSample(ctx context.Context, title, path string) (*entities.Sample, error)
	GetSample(ctx context.Context, id uint) (*entities.Sample, error)
	DeleteSample(ctx context.Context, id uint) (*entities.Sample, error)
	AddRating(ctx context.Context, sampleID uint, score float64) (*entities.Sample, error)
	SamplesWithAverage(ctx context.Context) ([]SampleAverage, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB       *gorm.DB // GORM database instance
	Settings *conf.Settings
}

// New creates a new datastore instance based on the configured backend.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{Settings: settings},
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{Settings: settings},
		}
	default:
		return nil
	}
}
