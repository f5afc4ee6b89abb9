package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
)

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&entities.Experiment{},
		&entities.Test{},
		&entities.Submission{},
		&entities.ExperimentTestResult{},
		&entities.Sample{},
		&entities.Rating{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		logging.Debug("database connection initialized", "type", dbType, "connection", connectionInfo)
	}

	return nil
}
